package packet

import (
	"bytes"
	"testing"
)

func TestFixedHeaderPack(t *testing.T) {
	testCases := []struct {
		name     string
		header   *FixedHeader
		expected []byte
	}{
		{
			name:     "CONNECT_Empty",
			header:   &FixedHeader{Kind: 0x01, RemainingLength: 0},
			expected: []byte{0x10, 0x00},
		},
		{
			name:     "PUBLISH_QoS1",
			header:   &FixedHeader{Kind: 0x03, QoS: 1, RemainingLength: 10},
			expected: []byte{0x32, 0x0A},
		},
		{
			name:     "SUBSCRIBE_QoS1",
			header:   &FixedHeader{Kind: 0x08, QoS: 1, RemainingLength: 20},
			expected: []byte{0x82, 0x14},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tc.header.Pack(&buf); err != nil {
				t.Fatalf("Pack() failed: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tc.expected) {
				t.Errorf("Pack() = %v, want %v", buf.Bytes(), tc.expected)
			}
		})
	}
}

func TestFixedHeaderPackTooLarge(t *testing.T) {
	header := &FixedHeader{Kind: 0x03, RemainingLength: max4 + 1}
	var buf bytes.Buffer
	if err := header.Pack(&buf); err == nil {
		t.Error("Pack() should fail when RemainingLength exceeds max4")
	}
}

func TestPeekFixedHeaderIncomplete(t *testing.T) {
	if _, _, err := peekFixedHeader(nil); err != ErrIncomplete {
		t.Errorf("empty input = %v, want ErrIncomplete", err)
	}
	if _, _, err := peekFixedHeader([]byte{0x30, 0x80}); err != ErrIncomplete {
		t.Errorf("truncated varint = %v, want ErrIncomplete", err)
	}
}

func TestPeekFixedHeaderRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		raw    []byte
		kind   byte
		length uint32
		hLen   int
	}{
		{"CONNECT_Empty", []byte{0x10, 0x00}, 0x1, 0, 2},
		{"PUBLISH_QoS1", []byte{0x32, 0x0A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0x3, 10, 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fh, headerLen, err := peekFixedHeader(tc.raw)
			if err != nil {
				t.Fatalf("peekFixedHeader failed: %v", err)
			}
			if fh.Kind != tc.kind || fh.RemainingLength != tc.length {
				t.Errorf("fh = %+v, want Kind=%d RemainingLength=%d", fh, tc.kind, tc.length)
			}
			if headerLen != tc.hLen {
				t.Errorf("headerLen = %d, want %d", headerLen, tc.hLen)
			}
		})
	}
}

func TestValidateFlagsRejectsReservedBits(t *testing.T) {
	testCases := []struct {
		name                  string
		kind, dup, qos, retain byte
		wantErr               bool
	}{
		{"PUBACK_clean", 0x4, 0, 0, 0, false},
		{"PUBACK_dup_set", 0x4, 1, 0, 0, true},
		{"PUBLISH_qos2", 0x3, 0, 2, 0, false},
		{"PUBLISH_qos3_reserved", 0x3, 0, 3, 0, true},
		{"PUBREL_correct_flags", 0x6, 0, 1, 0, false},
		{"PUBREL_wrong_qos", 0x6, 0, 0, 0, true},
		{"SUBSCRIBE_correct_flags", 0x8, 0, 1, 0, false},
		{"SUBSCRIBE_wrong_flags", 0x8, 1, 0, 1, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFlags(tc.kind, tc.dup, tc.qos, tc.retain)
			if tc.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
