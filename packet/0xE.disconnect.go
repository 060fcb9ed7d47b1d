package packet

import (
	"bytes"
	"io"
)

// DISCONNECT notifies the peer that the connection is ending cleanly
// (spec §4.8 Connection FSM: Connected -> Closing). MQTT 3.1.1 has no
// payload at all; MQTT 5.0 adds a reason code and properties, and may
// omit both when the reason is Success with no properties
// [MQTT-3.14.2-1].
type DISCONNECT struct {
	*FixedHeader

	ReasonCode ReasonCode
	Props      Properties
}

func (pkt *DISCONNECT) Kind() byte { return 0xE }

func (pkt *DISCONNECT) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

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

func (pkt *DISCONNECT) Unpack(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		pkt.ReasonCode = ReasonCode{Code: 0x00}
		return nil
	}
	code, err := decodeU8(buf)
	if err != nil {
		return err
	}
	pkt.ReasonCode = ReasonCode{Code: code}

	if pkt.Version == VERSION500 && buf.Len() > 0 {
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
	}
	return nil
}
