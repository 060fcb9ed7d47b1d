package packet

import (
	"bytes"
	"io"
)

// PUBREL is the second step of the QoS 2 handshake (spec §4.10 QoS2
// state machine). Its fixed header flags are fixed at DUP=0, QoS=1,
// RETAIN=0 [MQTT-3.6.1-1], enforced by validateFlags during decode.
type PUBREL struct {
	*FixedHeader

	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *PUBREL) Kind() byte { return 0x6 }

func (pkt *PUBREL) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 && (pkt.ReasonCode.Code != 0 || hasProps(pkt.Props)) {
		buf.WriteByte(pkt.ReasonCode.Code)
		buf.Write(pkt.Props.encode())
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	pkt.FixedHeader.QoS = 1
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *PUBREL) Unpack(buf *bytes.Buffer) error {
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
