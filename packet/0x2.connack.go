package packet

import (
	"bytes"
	"fmt"
	"io"
)

// CONNACK acknowledges a CONNECT (spec §4.8: CONNACK carries
// sessionPresent and the accept/reject reason code). No payload.
type CONNACK struct {
	*FixedHeader

	SessionPresent    uint8
	ConnectReturnCode ReasonCode
	Props             Properties
}

func (pkt *CONNACK) Kind() byte { return 0x2 }
func (pkt *CONNACK) String() string {
	return fmt.Sprintf("[0x2]CONNACK ReturnCode=%#02x", pkt.ConnectReturnCode.Code)
}

func (pkt *CONNACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte(pkt.SessionPresent)
	code := pkt.ConnectReturnCode.Code
	if pkt.Version != VERSION500 {
		code = connectReturnCodeV311(pkt.ConnectReturnCode)
	}
	buf.WriteByte(code)

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

// connectReturnCodeV311 maps a CONNACK reason code onto the MQTT
// 3.1.1 return code table [MQTT-3.2.2-3], which only defines 0x00-0x05
// (v3.1.1 has no per-property reason codes the way v5.0 does).
func connectReturnCodeV311(rc ReasonCode) uint8 {
	switch rc.Code {
	case CodeSuccess.Code:
		return 0x00
	case ErrUnsupportedProtocolVersion.Code:
		return 0x01
	case ErrClientIdentifierNotValid.Code:
		return 0x02
	case ErrServerUnavailable.Code:
		return 0x03
	case ErrBadUsernameOrPassword.Code:
		return 0x04
	case ErrNotAuthorized.Code:
		return 0x05
	default:
		return 0x03
	}
}

func (pkt *CONNACK) Unpack(buf *bytes.Buffer) error {
	sp, err := decodeU8(buf)
	if err != nil {
		return err
	}
	pkt.SessionPresent = sp & 0x01

	code, err := decodeU8(buf)
	if err != nil {
		return err
	}
	pkt.ConnectReturnCode = ReasonCode{Code: code}

	if pkt.Version == VERSION500 {
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
	}
	return nil
}
