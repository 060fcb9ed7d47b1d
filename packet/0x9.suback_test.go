package packet

import (
	"bytes"
	"testing"
)

func TestSUBACKKind(t *testing.T) {
	if (&SUBACK{}).Kind() != 0x09 {
		t.Errorf("SUBACK.Kind() = %#x, want 0x09", (&SUBACK{}).Kind())
	}
}

func TestSUBACKPackUnpackV311(t *testing.T) {
	s := &SUBACK{
		FixedHeader: &FixedHeader{Kind: 0x09, Version: VERSION311},
		PacketID:    10,
		ReasonCodes: []ReasonCode{CodeGrantedQoS1, {Code: 0x80}},
	}
	var buf bytes.Buffer
	if err := s.Pack(&buf); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}

	raw := buf.Bytes()
	_, headerLen, err := peekFixedHeader(raw)
	if err != nil {
		t.Fatalf("peekFixedHeader failed: %v", err)
	}
	got := &SUBACK{FixedHeader: &FixedHeader{Kind: 0x09, Version: VERSION311}}
	if err := got.Unpack(bytes.NewBuffer(raw[headerLen:])); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if len(got.ReasonCodes) != 2 || got.ReasonCodes[1].Code != 0x80 {
		t.Errorf("ReasonCodes = %+v", got.ReasonCodes)
	}
}

func TestSUBACKRejectsEmptyReasonCodeList(t *testing.T) {
	s := &SUBACK{FixedHeader: &FixedHeader{Kind: 0x09, Version: VERSION311}, PacketID: 1}
	var buf bytes.Buffer
	if err := s.Pack(&buf); err == nil {
		t.Error("Pack() should reject a SUBACK with no reason codes")
	}
}
