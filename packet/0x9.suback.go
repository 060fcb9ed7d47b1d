package packet

import (
	"bytes"
	"io"
)

// SUBACK acknowledges a SUBSCRIBE, one reason code per filter
// requested, in the same order [MQTT-3.9.3-1].
type SUBACK struct {
	*FixedHeader

	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

func (pkt *SUBACK) Kind() byte { return 0x9 }

func (pkt *SUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if len(pkt.ReasonCodes) == 0 {
		return ErrMalformedPacket
	}
	buf.Write(i2b(pkt.PacketID))

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	for _, reason := range pkt.ReasonCodes {
		buf.WriteByte(reason.Code)
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBACK) Unpack(buf *bytes.Buffer) error {
	pid, err := decodeU16(buf)
	if err != nil {
		return err
	}
	pkt.PacketID = pid

	if pkt.Version == VERSION500 {
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
	}

	for buf.Len() != 0 {
		code, err := decodeU8(buf)
		if err != nil {
			return err
		}
		pkt.ReasonCodes = append(pkt.ReasonCodes, ReasonCode{Code: code})
	}
	if len(pkt.ReasonCodes) == 0 {
		return ErrMalformedPacket
	}
	return nil
}
