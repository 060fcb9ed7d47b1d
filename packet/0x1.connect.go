package packet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang-io/requests"
)

// NAME is the fixed MQTT protocol name field: 0x00 0x04 'M' 'Q' 'T' 'T'.
var NAME = []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}

// CONNECT is the first packet a client sends on a new network
// connection (spec §4.8 Connection FSM: WaitConnect -> Connected).
// Variable header: protocol name, protocol level, connect flags, keep
// alive, properties (v5.0). Payload: client ID, will (optional),
// username/password (optional).
type CONNECT struct {
	*FixedHeader

	ConnectFlags ConnectFlags
	CleanSession bool
	KeepAlive    uint16
	Props        Properties

	ClientID string

	WillProps   Properties
	WillTopic   string
	WillPayload []byte
	WillQoS     uint8
	WillRetain  bool

	Username string
	Password string
}

func (pkt *CONNECT) Kind() byte   { return 0x1 }
func (pkt *CONNECT) String() string { return "[0x1]CONNECT" }

func (pkt *CONNECT) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(NAME)
	buf.WriteByte(pkt.FixedHeader.Version)

	uf := s2i(pkt.Username)
	pf := s2i(pkt.Password)
	var wf, wq, wr uint8
	if pkt.WillTopic != "" {
		wf = 1
		wq = pkt.WillQoS
		if pkt.WillRetain {
			wr = 1
		}
	}
	var cs uint8
	if pkt.CleanSession {
		cs = 1
	}
	flag := uf<<7 | pf<<6 | wr<<5 | wq<<3 | wf<<2 | cs<<1
	buf.WriteByte(flag)

	buf.Write(i2b(pkt.KeepAlive))

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	if len(pkt.ClientID) > 23 && pkt.Version != VERSION500 {
		return fmt.Errorf("%w: client identifier exceeds 23 characters", ErrClientIdentifierNotValid)
	}
	buf.Write(s2b(pkt.ClientID))

	if wf == 1 {
		if pkt.Version == VERSION500 {
			buf.Write(pkt.WillProps.encode())
		}
		buf.Write(s2b(pkt.WillTopic))
		buf.Write(s2b(pkt.WillPayload))
	}

	if pkt.Username != "" {
		buf.Write(s2b(pkt.Username))
	}
	if pkt.Password != "" {
		buf.Write(s2b(pkt.Password))
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *CONNECT) Unpack(buf *bytes.Buffer) error {
	name := buf.Next(6)
	if !bytes.Equal(name, NAME) {
		return fmt.Errorf("%w: got %v", ErrMalformedProtocolName, name)
	}

	verByte, err := decodeU8(buf)
	if err != nil {
		return err
	}
	flagByte, err := decodeU8(buf)
	if err != nil {
		return err
	}
	pkt.Version, pkt.ConnectFlags = verByte, ConnectFlags(flagByte)
	pkt.CleanSession = pkt.ConnectFlags.CleanStart()

	// The reserved bit must be zero [MQTT-3.1.2-3].
	if pkt.ConnectFlags.Reserved() != 0 {
		return ErrMalformedFlags
	}
	if pkt.ConnectFlags.WillQoS() > 2 {
		return ErrProtocolViolationQoS
	}
	if !pkt.ConnectFlags.WillFlag() {
		if pkt.ConnectFlags.WillRetain() || pkt.ConnectFlags.WillQoS() != 0 {
			return ErrProtocolViolationWill
		}
	}
	if !pkt.ConnectFlags.UserNameFlag() && pkt.ConnectFlags.PasswordFlag() {
		return ErrProtocolErr
	}

	pkt.KeepAlive, err = decodeU16(buf)
	if err != nil {
		return err
	}

	switch pkt.Version {
	case VERSION500:
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
	case VERSION311:
	case VERSION310:
		return ErrUnsupportedProtocolVersion
	default:
		return ErrMalformedProtocolVersion
	}

	pkt.ClientID, err = decodeUTF8[string](buf)
	if err != nil {
		return err
	}
	if pkt.ClientID == "" {
		pkt.ClientID = requests.GenId()
	}

	if pkt.ConnectFlags.WillFlag() {
		if pkt.Version == VERSION500 {
			pkt.WillProps, err = decodeProperties(buf)
			if err != nil {
				return err
			}
		}
		pkt.WillTopic, err = decodeUTF8[string](buf)
		if err != nil {
			return err
		}
		pkt.WillPayload, err = decodeUTF8[[]byte](buf)
		if err != nil {
			return err
		}
		if pkt.WillTopic == "" {
			return ErrProtocolViolationWill
		}
		pkt.WillQoS = pkt.ConnectFlags.WillQoS()
		pkt.WillRetain = pkt.ConnectFlags.WillRetain()
	}

	if pkt.ConnectFlags.UserNameFlag() {
		pkt.Username, err = decodeUTF8[string](buf)
		if err != nil {
			return err
		}
	}
	if pkt.ConnectFlags.PasswordFlag() {
		pkt.Password, err = decodeUTF8[string](buf)
		if err != nil {
			return err
		}
	}
	return nil
}

// ConnectFlags is the 8-bit connect-flags byte of CONNECT's variable
// header (bit 7 UserName .. bit 0 Reserved).
type ConnectFlags uint8

func (f ConnectFlags) Reserved() uint8     { return uint8(f) & 0x01 }
func (f ConnectFlags) CleanStart() bool    { return uint8(f)&0x02 == 0x02 }
func (f ConnectFlags) WillFlag() bool      { return uint8(f)&0x04 == 0x04 }
func (f ConnectFlags) WillQoS() uint8      { return (uint8(f) & 0x18) >> 3 }
func (f ConnectFlags) WillRetain() bool    { return uint8(f)&0x20 == 0x20 }
func (f ConnectFlags) UserNameFlag() bool  { return uint8(f)&0x80 == 0x80 }
func (f ConnectFlags) PasswordFlag() bool  { return uint8(f)&0x40 == 0x40 }
