package packet

import (
	"bytes"
	"io"
)

// AUTH carries an extended authentication exchange, MQTT 5.0 only
// (spec §4.8 auth exchange). newPacket rejects it for earlier
// versions before Unpack ever runs.
type AUTH struct {
	*FixedHeader

	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *AUTH) Kind() byte { return 0xF }

func (pkt *AUTH) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if pkt.ReasonCode.Code != 0 || hasProps(pkt.Props) {
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

func (pkt *AUTH) Unpack(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		pkt.ReasonCode = ReasonCode{Code: 0x00}
		return nil
	}
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
	return nil
}
