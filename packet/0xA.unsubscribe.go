package packet

import (
	"bytes"
	"io"
)

// UNSUBSCRIBE cancels one or more subscriptions by exact filter match
// (spec §5 Subscriptions). Flags are fixed at DUP=0, QoS=1, RETAIN=0.
type UNSUBSCRIBE struct {
	*FixedHeader

	PacketID uint16
	Props    Properties
	Filters  []string
}

func (pkt *UNSUBSCRIBE) Kind() byte { return 0xA }

func (pkt *UNSUBSCRIBE) Pack(w io.Writer) error {
	if len(pkt.Filters) == 0 {
		return ErrProtocolViolationNoFilter
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))

	if pkt.Version == VERSION500 {
		buf.Write(pkt.Props.encode())
	}

	for _, filter := range pkt.Filters {
		buf.Write(s2b(filter))
	}
	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	pkt.FixedHeader.QoS = 1
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
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
		pkt.Filters = append(pkt.Filters, filter)
	}
	if len(pkt.Filters) == 0 {
		return ErrProtocolViolationNoFilter
	}
	return nil
}
