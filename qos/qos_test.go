package qos

import (
	"testing"

	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/session"
)

func newTestSession() *session.Session {
	s, _ := session.NewStore().GetOrCreate("c1", false)
	return s
}

func TestQoS1RoundTrip(t *testing.T) {
	sess := newTestSession()
	id, _ := sess.AllocatePacketID()
	sess.MarkInFlight(id, &packet.Message{TopicName: "a/b"}, session.AwaitingPubAck)

	pub := BeginPublish(packet.VERSION311, session.OutboundItem{Message: &packet.Message{TopicName: "a/b"}, QoS: 1, PacketID: id})
	if pub.Dup != 0 || pub.QoS != 1 {
		t.Fatalf("BeginPublish() = %+v", pub)
	}

	if _, ok := OnPubAck(sess, id); !ok {
		t.Fatal("OnPubAck() should find the in-flight entry")
	}
	if _, ok := sess.InFlight(id); ok {
		t.Error("entry should be released after OnPubAck")
	}
}

func TestQoS2RoundTrip(t *testing.T) {
	sess := newTestSession()
	id, _ := sess.AllocatePacketID()
	sess.MarkInFlight(id, &packet.Message{TopicName: "a/b"}, session.AwaitingPubRec)

	rel, err := OnPubRec(sess, packet.VERSION311, id)
	if err != nil {
		t.Fatalf("OnPubRec() failed: %v", err)
	}
	if rel.PacketID != id {
		t.Errorf("PUBREL.PacketID = %d, want %d", rel.PacketID, id)
	}

	if _, ok := OnPubComp(sess, id); !ok {
		t.Fatal("OnPubComp() should find the in-flight entry")
	}
}

func TestOnPubRecUnknownID(t *testing.T) {
	sess := newTestSession()
	if _, err := OnPubRec(sess, packet.VERSION311, 99); err != packet.ErrPacketIdentifierNotFound {
		t.Errorf("OnPubRec() error = %v, want ErrPacketIdentifierNotFound", err)
	}
}

func TestResendSetsDup(t *testing.T) {
	sess := newTestSession()
	id, _ := sess.AllocatePacketID()
	sess.MarkInFlight(id, &packet.Message{TopicName: "a/b"}, session.AwaitingPubAck)

	pub, ok := Resend(sess, packet.VERSION311, id)
	if !ok || pub.Dup != 1 || pub.QoS != 1 {
		t.Fatalf("Resend() = %+v, ok=%v", pub, ok)
	}
}

func TestInboundQoS2Dedup(t *testing.T) {
	sess := newTestSession()
	msg := &packet.Message{TopicName: "a/b"}
	if OnInboundPublishQoS2(sess, 7, msg) {
		t.Error("first delivery should not be a duplicate")
	}
	if !OnInboundPublishQoS2(sess, 7, msg) {
		t.Error("repeat PUBLISH before PUBREL should be treated as a duplicate")
	}

	comp, pending := OnInboundPubrel(sess, packet.VERSION311, 7)
	if comp.PacketID != 7 {
		t.Errorf("PUBCOMP.PacketID = %d, want 7", comp.PacketID)
	}
	if pending != msg {
		t.Errorf("OnInboundPubrel() pending = %v, want the message held since PUBLISH", pending)
	}
	if OnInboundPublishQoS2(sess, 7, msg) {
		t.Error("after PUBREL, id 7 should be treated as fresh again")
	}
}

func TestInboundPubrelForUnknownIDIsIdempotent(t *testing.T) {
	sess := newTestSession()
	comp, pending := OnInboundPubrel(sess, packet.VERSION311, 42)
	if comp.PacketID != 42 {
		t.Errorf("PUBCOMP.PacketID = %d, want 42 even for an unseen id", comp.PacketID)
	}
	if pending != nil {
		t.Errorf("OnInboundPubrel() pending = %v, want nil for an id never published", pending)
	}
}
