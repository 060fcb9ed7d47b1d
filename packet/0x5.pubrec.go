package packet

import (
	"bytes"
	"io"
)

// PUBREC is the first step of the QoS 2 handshake: receiver to sender
// acknowledgement that PUBLISH arrived (spec §4.10 QoS2 state
// machine). Like PUBACK, the reason code and properties may be omitted
// in MQTT 5.0 when the reason is Success and there are no properties.
type PUBREC struct {
	*FixedHeader

	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *PUBREC) Kind() byte { return 0x5 }

func (pkt *PUBREC) Pack(w io.Writer) error {
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

func (pkt *PUBREC) Unpack(buf *bytes.Buffer) error {
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
