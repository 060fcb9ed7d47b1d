package session

import (
	"testing"

	"github.com/coldbrook/mqttd/packet"
)

func TestAllocateAndReleasePacketID(t *testing.T) {
	s := newSession("c1", false)
	id, err := s.AllocatePacketID()
	if err != nil {
		t.Fatalf("AllocatePacketID() failed: %v", err)
	}
	if id == 0 {
		t.Fatal("AllocatePacketID() returned 0")
	}
	s.MarkInFlight(id, &packet.Message{TopicName: "a/b"}, AwaitingPubAck)

	id2, err := s.AllocatePacketID()
	if err != nil {
		t.Fatalf("AllocatePacketID() failed: %v", err)
	}
	if id2 == id {
		t.Fatalf("AllocatePacketID() returned a still-in-flight id %d twice", id)
	}

	s.ReleasePacketID(id)
	if _, ok := s.InFlight(id); ok {
		t.Error("id should no longer be in-flight after ReleasePacketID")
	}
}

func TestAllocatePacketIDExhausted(t *testing.T) {
	s := newSession("c1", false)
	for i := 1; i <= 65535; i++ {
		s.inflight[uint16(i)] = &InFlightEntry{}
	}
	if _, err := s.AllocatePacketID(); err != packet.ErrQuotaExceeded {
		t.Errorf("AllocatePacketID() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestAdvanceAndComplete(t *testing.T) {
	s := newSession("c1", false)
	s.MarkInFlight(1, &packet.Message{TopicName: "a"}, AwaitingPubRec)

	entry, ok := s.Advance(1, AwaitingPubComp)
	if !ok || entry.Phase != AwaitingPubComp {
		t.Fatalf("Advance() = %+v, ok=%v", entry, ok)
	}

	if _, ok := s.Complete(1); !ok {
		t.Fatal("Complete() should find the in-flight entry")
	}
	if _, ok := s.InFlight(1); ok {
		t.Error("entry should be gone after Complete")
	}
}

func TestRecordInboundQoS2Dedup(t *testing.T) {
	s := newSession("c1", false)
	msg := &packet.Message{TopicName: "a/b"}
	if s.RecordInboundQoS2(5, msg) {
		t.Error("first RecordInboundQoS2 should report false")
	}
	if !s.RecordInboundQoS2(5, msg) {
		t.Error("second RecordInboundQoS2 for the same id should report true (duplicate)")
	}
	taken, ok := s.TakeInboundQoS2(5)
	if !ok || taken != msg {
		t.Errorf("TakeInboundQoS2 = (%v, %v), want the recorded message", taken, ok)
	}
	if _, ok := s.TakeInboundQoS2(5); ok {
		t.Error("TakeInboundQoS2 should not return an entry twice")
	}
	if s.RecordInboundQoS2(5, msg) {
		t.Error("after TakeInboundQoS2, id should be treated as fresh")
	}
}

func TestStoreGetOrCreateResumesSession(t *testing.T) {
	store := NewStore()
	s1, present := store.GetOrCreate("c1", false)
	if present {
		t.Error("first GetOrCreate should report no session present")
	}
	s1.MarkInFlight(1, &packet.Message{TopicName: "a"}, AwaitingPubAck)

	s2, present := store.GetOrCreate("c1", false)
	if !present {
		t.Error("second GetOrCreate with clean=false should resume the session")
	}
	if s2 != s1 {
		t.Error("resumed session should be the same instance")
	}
}

func TestStoreGetOrCreateCleanDiscardsSession(t *testing.T) {
	store := NewStore()
	s1, _ := store.GetOrCreate("c1", false)
	s1.MarkInFlight(1, &packet.Message{TopicName: "a"}, AwaitingPubAck)

	s2, present := store.GetOrCreate("c1", true)
	if present {
		t.Error("clean=true GetOrCreate should not report session present")
	}
	if s2 == s1 {
		t.Error("clean=true GetOrCreate should discard the previous session")
	}
}

func TestStoreTake(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("c1", true)
	if _, ok := store.Take("c1"); !ok {
		t.Fatal("Take() should find the session")
	}
	if _, ok := store.Get("c1"); ok {
		t.Error("session should be gone from the registry after Take")
	}
}

func TestStoreSubscriptions(t *testing.T) {
	store := NewStore()
	store.GetOrCreate("c1", false)
	store.AddSubscription("c1", Subscription{Filter: "a/+", QoS: 1})

	sess, _ := store.Get("c1")
	if subs := sess.Subscriptions(); len(subs) != 1 || subs[0].Filter != "a/+" {
		t.Fatalf("Subscriptions() = %+v", subs)
	}

	store.RemoveSubscription("c1", "a/+")
	if subs := sess.Subscriptions(); len(subs) != 0 {
		t.Errorf("Subscriptions() = %+v, want none after remove", subs)
	}
}
