package packet

import (
	"bytes"
	"testing"
)

func TestUNSUBSCRIBEKind(t *testing.T) {
	if (&UNSUBSCRIBE{}).Kind() != 0x0A {
		t.Errorf("UNSUBSCRIBE.Kind() = %#x, want 0x0A", (&UNSUBSCRIBE{}).Kind())
	}
}

func TestUNSUBSCRIBEPackUnpack(t *testing.T) {
	u := &UNSUBSCRIBE{
		FixedHeader: &FixedHeader{Kind: 0x0A, Version: VERSION311},
		PacketID:    3,
		Filters:     []string{"a/b", "c/d"},
	}
	var buf bytes.Buffer
	if err := u.Pack(&buf); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	raw := buf.Bytes()
	_, headerLen, err := peekFixedHeader(raw)
	if err != nil {
		t.Fatalf("peekFixedHeader failed: %v", err)
	}
	got := &UNSUBSCRIBE{FixedHeader: &FixedHeader{Kind: 0x0A, Version: VERSION311}}
	if err := got.Unpack(bytes.NewBuffer(raw[headerLen:])); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if len(got.Filters) != 2 || got.Filters[0] != "a/b" || got.Filters[1] != "c/d" {
		t.Errorf("Filters = %v", got.Filters)
	}
}

func TestUNSUBSCRIBERejectsEmptyFilterList(t *testing.T) {
	u := &UNSUBSCRIBE{FixedHeader: &FixedHeader{Kind: 0x0A, Version: VERSION311}, PacketID: 1}
	var buf bytes.Buffer
	if err := u.Pack(&buf); err == nil {
		t.Error("Pack() should reject an UNSUBSCRIBE with no filters")
	}
}

func TestUNSUBACKKind(t *testing.T) {
	if (&UNSUBACK{}).Kind() != 0x0B {
		t.Errorf("UNSUBACK.Kind() = %#x, want 0x0B", (&UNSUBACK{}).Kind())
	}
}

func TestUNSUBACKPackUnpackV311(t *testing.T) {
	u := &UNSUBACK{FixedHeader: &FixedHeader{Kind: 0x0B, Version: VERSION311}, PacketID: 7}
	var buf bytes.Buffer
	if err := u.Pack(&buf); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	raw := buf.Bytes()
	_, headerLen, err := peekFixedHeader(raw)
	if err != nil {
		t.Fatalf("peekFixedHeader failed: %v", err)
	}
	got := &UNSUBACK{FixedHeader: &FixedHeader{Kind: 0x0B, Version: VERSION311}}
	if err := got.Unpack(bytes.NewBuffer(raw[headerLen:])); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if got.PacketID != 7 {
		t.Errorf("PacketID = %d, want 7", got.PacketID)
	}
}

func TestUNSUBACKPackUnpackV500WithReasonCodes(t *testing.T) {
	u := &UNSUBACK{
		FixedHeader: &FixedHeader{Kind: 0x0B, Version: VERSION500},
		PacketID:    8,
		ReasonCodes: []ReasonCode{CodeSuccess, {Code: 0x11}},
	}
	var buf bytes.Buffer
	if err := u.Pack(&buf); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	raw := buf.Bytes()
	_, headerLen, err := peekFixedHeader(raw)
	if err != nil {
		t.Fatalf("peekFixedHeader failed: %v", err)
	}
	got := &UNSUBACK{FixedHeader: &FixedHeader{Kind: 0x0B, Version: VERSION500}}
	if err := got.Unpack(bytes.NewBuffer(raw[headerLen:])); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if len(got.ReasonCodes) != 2 || got.ReasonCodes[1].Code != 0x11 {
		t.Errorf("ReasonCodes = %+v", got.ReasonCodes)
	}
}
