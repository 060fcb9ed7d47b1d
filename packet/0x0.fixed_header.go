package packet

import (
	"fmt"
	"io"
)

// FixedHeader holds the fixed header portion of every MQTT control packet.
//
//	bit    | 7   6   5   4 | 3   2   1   0
//	byte 1 | packet type   | flags
//	byte 2.. | remaining length (variable byte integer)
type FixedHeader struct {
	Version byte // protocol version this packet was decoded/encoded under

	Kind   byte `json:"Kind,omitempty"`
	Dup    uint8
	QoS    uint8
	Retain uint8

	RemainingLength uint32
}

func (pkt *FixedHeader) String() string {
	return fmt.Sprintf("%s: Len=%d", Kind[pkt.Kind], pkt.RemainingLength)
}

func (pkt *FixedHeader) Pack(w io.Writer) error {
	b := make([]byte, 1)
	b[0] |= pkt.Kind << 4
	b[0] |= pkt.Dup << 3
	b[0] |= pkt.QoS << 1
	b[0] |= pkt.Retain
	enc, err := encodeLength(pkt.RemainingLength)
	if err != nil {
		return err
	}
	b = append(b, enc...)
	_, err = w.Write(b)
	return err
}

// validateFlags enforces the reserved-bit rules of the fixed header's
// byte 1 (spec §4.3 / MQTT-2.2.2-1,2): PUBLISH carries a real QoS and
// DUP/RETAIN, PUBREL/SUBSCRIBE/UNSUBSCRIBE fix DUP=0,QoS=1,RETAIN=0, and
// every other packet type must see all three bits zero.
func validateFlags(kind, dup, qos, retain byte) error {
	switch kind {
	case 0x3:
		if qos > 2 {
			return ErrProtocolViolationQoS
		}
		if qos == 0 && dup != 0 {
			return ErrProtocolViolationDup
		}
	case 0x6, 0x8, 0xA:
		if dup != 0 || qos != 1 || retain != 0 {
			return ErrMalformedFlags
		}
	default:
		if dup != 0 || qos != 0 || retain != 0 {
			return ErrMalformedFlags
		}
	}
	return nil
}

// peekFixedHeader parses the fixed header out of raw without consuming
// anything from the caller's buffer. It returns ErrIncomplete (and a
// zero headerLen) when raw does not yet hold a complete fixed header,
// so the caller can wait for more bytes and retry from the same offset.
func peekFixedHeader(raw []byte) (fh FixedHeader, headerLen int, err error) {
	if len(raw) < 1 {
		return fh, 0, ErrIncomplete
	}
	b0 := raw[0]
	fh.Kind = b0 >> 4
	fh.Dup = b0 & 0b00001000 >> 3
	fh.QoS = b0 & 0b00000110 >> 1
	fh.Retain = b0 & 0b00000001
	if err := validateFlags(fh.Kind, fh.Dup, fh.QoS, fh.Retain); err != nil {
		return fh, 0, err
	}

	var vbi uint32
	for i := 0; i < 4; i++ {
		idx := 1 + i
		if idx >= len(raw) {
			return fh, 0, ErrIncomplete
		}
		o := raw[idx]
		vbi |= uint32(o&127) << (7 * i)
		if o&128 == 0 {
			if vbi > max4 {
				return fh, 0, ErrMalformedVarint
			}
			fh.RemainingLength = vbi
			return fh, idx + 1, nil
		}
	}
	return fh, 0, ErrMalformedVarint
}
