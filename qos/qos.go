// Package qos implements the QoS 1/2 delivery state machines shared by
// the broker and the client (spec §4.10): outbound dup/resend tracking
// and inbound QoS 2 duplicate suppression, both driven by the same
// session.Session in-flight bookkeeping. Grounded on gonzalop-mq's
// qos.go/logic.go split (a standalone state-machine file kept apart
// from the transport loop), adapted onto this module's packet/session
// types since gonzalop-mq itself carries no third-party dependency to
// reuse.
package qos

import (
	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/session"
)

// BeginPublish builds the first PUBLISH packet (dup=0) for item. It does
// not touch the session: callers register a QoS 1/2 delivery as
// in-flight with Session.MarkInFlight themselves.
func BeginPublish(version byte, item session.OutboundItem) *packet.PUBLISH {
	return &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: version, Kind: 0x3, QoS: item.QoS, Retain: item.Retain},
		PacketID:    item.PacketID,
		Message:     item.Message,
	}
}

// Resend rebuilds the PUBLISH for id with dup=1, for a sender that
// timed out waiting for PUBACK/PUBREC (spec §4.10 "on timeout → resend
// PUBLISH(dup=1, id), stay").
func Resend(sess *session.Session, version byte, id uint16) (*packet.PUBLISH, bool) {
	entry, ok := sess.MarkDup(id)
	if !ok || entry.Phase == session.AwaitingPubComp {
		return nil, false
	}
	return &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: version, Kind: 0x3, Dup: 1, QoS: qosForPhase(entry.Phase)},
		PacketID:    id,
		Message:     entry.Message,
	}, true
}

// ResendPubrel rebuilds the PUBREL for id, for a sender awaiting
// PUBCOMP that timed out (spec §4.10 "on timeout → resend PUBREL(id)").
func ResendPubrel(sess *session.Session, version byte, id uint16) (*packet.PUBREL, bool) {
	if entry, ok := sess.InFlight(id); !ok || entry.Phase != session.AwaitingPubComp {
		return nil, false
	}
	return &packet.PUBREL{FixedHeader: &packet.FixedHeader{Version: version, Kind: 0x6, QoS: 1}, PacketID: id}, true
}

func qosForPhase(phase session.Phase) uint8 {
	if phase == session.AwaitingPubAck {
		return 1
	}
	return 2
}

// OnPubAck completes a QoS 1 outbound delivery (spec §4.10 "on
// PUBACK(id) → complete, release id").
func OnPubAck(sess *session.Session, id uint16) (*session.InFlightEntry, bool) {
	entry, ok := sess.Complete(id)
	sess.ReleasePacketID(id)
	return entry, ok
}

// OnPubRec advances a QoS 2 outbound delivery to AwaitingPubComp and
// returns the PUBREL to send (spec §4.10 "on PUBREC(id) → send
// PUBREL(id) → AwaitingPubComp").
func OnPubRec(sess *session.Session, version byte, id uint16) (*packet.PUBREL, error) {
	if _, ok := sess.Advance(id, session.AwaitingPubComp); !ok {
		return nil, packet.ErrPacketIdentifierNotFound
	}
	return &packet.PUBREL{FixedHeader: &packet.FixedHeader{Version: version, Kind: 0x6, QoS: 1}, PacketID: id}, nil
}

// OnPubComp completes a QoS 2 outbound delivery (spec §4.10 "on
// PUBCOMP(id) → complete, release id").
func OnPubComp(sess *session.Session, id uint16) (*session.InFlightEntry, bool) {
	entry, ok := sess.Complete(id)
	sess.ReleasePacketID(id)
	return entry, ok
}

// OnInboundPublishQoS2 implements the receiver side of spec §4.10 "QoS
// 2 inbound": holds msg pending delivery until PUBREL and reports
// whether id was already seen (a duplicate that must not be routed or
// redelivered again).
func OnInboundPublishQoS2(sess *session.Session, id uint16, msg *packet.Message) (duplicate bool) {
	return sess.RecordInboundQoS2(id, msg)
}

// OnInboundPubrel implements "Receive PUBREL(id) → remove id from set,
// send PUBCOMP(id)", idempotently for an id the receiver never saw, and
// returns the message held since the matching PUBLISH so the caller can
// now hand it to C7 (spec §4.8: never before PUBREL for qos 2).
func OnInboundPubrel(sess *session.Session, version byte, id uint16) (*packet.PUBCOMP, *packet.Message) {
	msg, _ := sess.TakeInboundQoS2(id)
	return &packet.PUBCOMP{FixedHeader: &packet.FixedHeader{Version: version, Kind: 0x7}, PacketID: id}, msg
}
