package packet

import (
	"bytes"
	"io"
)

// PUBACK is the QoS 1 acknowledgement of a PUBLISH (spec §4.10 QoS1
// state machine). MQTT 5.0 may omit the reason code and properties
// entirely when the reason is Success and there are no properties.
type PUBACK struct {
	*FixedHeader

	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *PUBACK) Kind() byte { return 0x4 }

func (pkt *PUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 && (pkt.ReasonCode.Code != 0 || hasProps(pkt.Props)) {
		buf.WriteByte(pkt.ReasonCode.Code)
		buf.Write(pkt.Props.encode())
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *PUBACK) Unpack(buf *bytes.Buffer) error {
	pid, err := decodeU16(buf)
	if err != nil {
		return err
	}
	pkt.PacketID = pid

	if pkt.Version == VERSION500 && buf.Len() > 0 {
		code, err := decodeU8(buf)
		if err != nil {
			return err
		}
		pkt.ReasonCode = ReasonCode{Code: code}
		if buf.Len() > 0 {
			pkt.Props, err = decodeProperties(buf)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// hasProps reports whether p has anything set worth encoding, used by
// the QoS ack packets to decide whether the reason-code/properties
// suffix can be omitted (MQTT 5.0 §3.4.2.1 and siblings).
func hasProps(p Properties) bool {
	return len(p.encode()) > 1
}
