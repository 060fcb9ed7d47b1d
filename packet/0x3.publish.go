package packet

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// PUBLISH carries an application message from sender to receiver (spec
// §3 Data Model / §4.10 QoS state machines). Flags: DUP (bit 3), QoS
// (bits 2-1), RETAIN (bit 0). Packet identifier is present only when
// QoS > 0 [MQTT-2.3.1-5].
type PUBLISH struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16
	Message  *Message
	Props    Properties
}

func (pkt *PUBLISH) Kind() byte { return 0x3 }

func (pkt *PUBLISH) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if pkt.FixedHeader == nil {
		return fmt.Errorf("mqtt: PUBLISH has no fixed header")
	}
	if pkt.Message.TopicName == "" {
		return ErrMalformedTopic
	}
	if strings.ContainsAny(pkt.Message.TopicName, "+#") {
		return ErrTopicNameInvalid
	}

	buf.Write(s2b(pkt.Message.TopicName))
	if pkt.FixedHeader.QoS > 0 {
		if pkt.PacketID == 0 {
			return ErrMalformedPacketID
		}
		buf.Write(i2b(pkt.PacketID))
	}

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	buf.Write(pkt.Message.Content)
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())

	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *PUBLISH) Unpack(buf *bytes.Buffer) error {
	topic, err := decodeUTF8[string](buf)
	if err != nil {
		return err
	}
	if topic == "" {
		return ErrMalformedTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrTopicNameInvalid
	}
	pkt.Message = &Message{TopicName: topic}

	if pkt.FixedHeader.QoS > 0 {
		pid, err := decodeU16(buf)
		if err != nil {
			return err
		}
		if pid == 0 {
			return ErrMalformedPacketID
		}
		pkt.PacketID = pid
	}

	if pkt.Version == VERSION500 {
		pkt.Props, err = decodeProperties(buf)
		if err != nil {
			return err
		}
	}

	pkt.Message.Content = append([]byte(nil), buf.Bytes()...)
	return nil
}

// Message is the application message carried by a PUBLISH packet, and
// the shape stored by the retained-message store and session queues
// (spec §3 Data Model).
type Message struct {
	TopicName string
	Content   []byte
	QoS       uint8
	Retain    bool
}

func (m *Message) String() string {
	return fmt.Sprintf("%s # %s", m.TopicName, m.Content)
}
