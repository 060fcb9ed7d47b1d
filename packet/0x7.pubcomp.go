package packet

import (
	"bytes"
	"io"
)

// PUBCOMP is the final step of the QoS 2 handshake (spec §4.10 QoS2
// state machine). Flags must be DUP=0, QoS=0, RETAIN=0.
type PUBCOMP struct {
	*FixedHeader

	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *PUBCOMP) Kind() byte { return 0x7 }

func (pkt *PUBCOMP) Pack(w io.Writer) error {
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

func (pkt *PUBCOMP) Unpack(buf *bytes.Buffer) error {
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
