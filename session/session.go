// Package session implements the broker's per-client session state and
// registry (spec §4.5, C5): subscriptions, outbound queue, QoS 1/2
// in-flight bookkeeping, and the packet-id allocator. Grounded on the
// teacher's conn-held InFight map (infight.go) and per-conn
// subscribeTopics trie (conn.go), generalized into a registry keyed by
// client-id so a session survives its owning connection across
// clean_session=false reconnects.
package session

import (
	"sync"

	"github.com/coldbrook/mqttd/packet"
)

const outboundQueueDepth = 256

// Phase is where an outbound QoS 1/2 delivery sits in the state
// machine (spec §4.10).
type Phase uint8

const (
	AwaitingPubAck Phase = iota
	AwaitingPubRec
	AwaitingPubComp
)

// InFlightEntry is one outbound QoS 1/2 delivery awaiting acknowledgement.
type InFlightEntry struct {
	Message *packet.Message
	Phase   Phase
	Dup     bool
}

// OutboundItem is what the router hands to a session's Outbound channel:
// a message plus the packet-id assigned for QoS > 0 (0 for QoS 0).
type OutboundItem struct {
	Message  *packet.Message
	QoS      uint8
	PacketID uint16
	Retain   bool
}

// Subscription is one entry in a session's subscription set.
type Subscription struct {
	Filter  string
	QoS     uint8
	NoLocal bool
}

// Session is the server-side per-client state that survives a
// connection when CleanSession is false (spec §4.8 Closing).
type Session struct {
	ClientID     string
	CleanSession bool
	Will         *packet.Message
	Outbound     chan OutboundItem

	mu          sync.Mutex
	subs        map[string]Subscription
	inflight    map[uint16]*InFlightEntry
	qos2Pending map[uint16]*packet.Message
	nextID      uint16
}

func newSession(clientID string, clean bool) *Session {
	return &Session{
		ClientID:     clientID,
		CleanSession: clean,
		Outbound:     make(chan OutboundItem, outboundQueueDepth),
		subs:         make(map[string]Subscription),
		inflight:     make(map[uint16]*InFlightEntry),
		qos2Pending:  make(map[uint16]*packet.Message),
	}
}

// Subscriptions returns a snapshot of the session's current subscriptions.
func (s *Session) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// AllocatePacketID implements the rolling-counter allocator (spec §4.5):
// scan forward from the last-issued id until one not already in-flight
// is found; fail QuotaExceeded once all 65535 ids are taken.
func (s *Session) AllocatePacketID() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < 65535; i++ {
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, ok := s.inflight[s.nextID]; !ok {
			return s.nextID, nil
		}
	}
	return 0, packet.ErrQuotaExceeded
}

// ReleasePacketID frees id for reuse without regard to its in-flight phase.
func (s *Session) ReleasePacketID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// MarkInFlight registers id as an outbound delivery awaiting the given phase.
func (s *Session) MarkInFlight(id uint16, msg *packet.Message, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = &InFlightEntry{Message: msg, Phase: phase}
}

// Advance moves an in-flight entry to a new phase (PUBREC -> AwaitingPubComp).
func (s *Session) Advance(id uint16, phase Phase) (*InFlightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.inflight[id]
	if ok {
		e.Phase = phase
		e.Dup = false
	}
	return e, ok
}

// MarkDup flags the in-flight entry for resend with dup=1 after a timeout.
func (s *Session) MarkDup(id uint16) (*InFlightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.inflight[id]
	if ok {
		e.Dup = true
	}
	return e, ok
}

// Complete finalizes and releases an in-flight entry (PUBACK for QoS 1,
// PUBCOMP for QoS 2).
func (s *Session) Complete(id uint16) (*InFlightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	return e, ok
}

func (s *Session) InFlight(id uint16) (*InFlightEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.inflight[id]
	return e, ok
}

func (s *Session) InFlightIDs() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint16, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	return ids
}

// RecordInboundQoS2 records msg as the pending QoS 2 delivery for id on
// the first PUBLISH seen for it, reporting duplicate=true if id was
// already recorded (a retransmitted PUBLISH that must not be routed or
// delivered twice). The message is held, not routed, until PUBREL
// arrives (spec §4.8 Connected: "hand to C7 after PUBREL for qos 2,
// never before").
func (s *Session) RecordInboundQoS2(id uint16, msg *packet.Message) (duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qos2Pending[id]; ok {
		return true
	}
	s.qos2Pending[id] = msg
	return false
}

// TakeInboundQoS2 removes and returns the message recorded by
// RecordInboundQoS2 for id, for delivery on PUBREL. ok is false for a
// PUBREL with no matching pending PUBLISH (already taken, or none
// ever arrived).
func (s *Session) TakeInboundQoS2(id uint16) (msg *packet.Message, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok = s.qos2Pending[id]
	if ok {
		delete(s.qos2Pending, id)
	}
	return msg, ok
}

// Enqueue pushes a delivery onto the outbound channel, blocking the
// caller (backpressure) when the queue is full (spec §5 Backpressure).
func (s *Session) Enqueue(item OutboundItem) {
	s.Outbound <- item
}
