package packet

import (
	"bytes"
	"io"
)

// UNSUBACK acknowledges an UNSUBSCRIBE. MQTT 3.1.1 carries only the
// packet identifier; MQTT 5.0 adds a reason code per filter.
type UNSUBACK struct {
	*FixedHeader

	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

func (pkt *UNSUBACK) Kind() byte { return 0xB }

func (pkt *UNSUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
		for _, reason := range pkt.ReasonCodes {
			buf.WriteByte(reason.Code)
		}
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	pid, err := decodeU16(buf)
	if err != nil {
		return err
	}
	pkt.PacketID = pid

	switch pkt.Version {
	case VERSION500:
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
		for buf.Len() != 0 {
			code, err := decodeU8(buf)
			if err != nil {
				return err
			}
			pkt.ReasonCodes = append(pkt.ReasonCodes, ReasonCode{Code: code})
		}
	case VERSION311:
	case VERSION310:
		return ErrUnsupportedProtocolVersion
	default:
		return ErrMalformedProtocolVersion
	}
	return nil
}
