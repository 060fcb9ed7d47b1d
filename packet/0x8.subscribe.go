package packet

import (
	"bytes"
	"fmt"
	"io"
)

// SUBSCRIBE requests one or more topic subscriptions (spec §5
// Subscriptions). Flags are fixed at DUP=0, QoS=1, RETAIN=0
// [MQTT-3.8.1-1]; the payload must list at least one subscription
// [MQTT-3.8.3-1].
type SUBSCRIBE struct {
	*FixedHeader

	PacketID      uint16
	Props         Properties
	Subscriptions []Subscription
}

func (pkt *SUBSCRIBE) Kind() byte { return 0x8 }

func (pkt *SUBSCRIBE) Pack(w io.Writer) error {
	if len(pkt.Subscriptions) == 0 {
		return ErrProtocolViolationNoFilter
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	for _, sub := range pkt.Subscriptions {
		if sub.TopicFilter == "" {
			return ErrProtocolViolationNoFilter
		}
		buf.Write(s2b(sub.TopicFilter))
		options := sub.MaximumQoS&0x03 | sub.NoLocal<<2 | sub.RetainAsPublished<<3 | sub.RetainHandling<<4
		buf.WriteByte(options)
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	pkt.FixedHeader.QoS = 1
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	if pkt.Dup != 0 || pkt.QoS != 1 || pkt.Retain != 0 {
		return ErrMalformedFlags
	}
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
		filter, err := decodeUTF8[string](buf)
		if err != nil {
			return err
		}
		options, err := decodeU8(buf)
		if err != nil {
			return err
		}
		if options&0xC0 != 0 {
			return ErrMalformedFlags
		}
		sub := Subscription{
			TopicFilter:       filter,
			MaximumQoS:        options & 0x03,
			NoLocal:           (options & 0x04) >> 2,
			RetainAsPublished: (options & 0x08) >> 3,
			RetainHandling:    (options & 0x30) >> 4,
		}
		if sub.MaximumQoS > 0x02 {
			return ErrProtocolViolationQoS
		}
		if sub.RetainHandling > 0x02 {
			return ErrMalformedFlags
		}
		pkt.Subscriptions = append(pkt.Subscriptions, sub)
	}
	if len(pkt.Subscriptions) == 0 {
		return ErrProtocolViolationNoFilter
	}
	return nil
}

// Subscription is a single topic-filter entry of a SUBSCRIBE payload
// (spec §5.1). NoLocal, RetainAsPublished and RetainHandling are
// MQTT 5.0 subscription options; v3.1.1 leaves them zero.
type Subscription struct {
	TopicFilter       string
	MaximumQoS        uint8
	NoLocal           uint8
	RetainAsPublished uint8
	RetainHandling    uint8
}

func (s *Subscription) String() string {
	return fmt.Sprintf("%s@%d", s.TopicFilter, s.MaximumQoS)
}
