// Package router implements fan-out PUBLISH delivery across the
// session registry (spec §4.7, C7), grounded on the teacher's
// mem_topic.go: an errgroup-based concurrent fan-out per matching
// subscriber, generalized from the teacher's per-topic active-conn set
// to per-session subscription matching via the topic matcher.
package router

import (
	"context"

	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/retained"
	"github.com/coldbrook/mqttd/session"
	"github.com/coldbrook/mqttd/topic"
	"golang.org/x/sync/errgroup"
)

// Router fans a published message out to every matching session.
type Router struct {
	Sessions *session.Store
	Retained *retained.Store
}

func New(sessions *session.Store, ret *retained.Store) *Router {
	return &Router{Sessions: sessions, Retained: ret}
}

// Route implements spec §4.7 route(publish): persist/clear the
// retained entry, then deliver to every session with a matching
// subscription, downgrading QoS to min(publish.qos, sub.qos) and
// honoring NoLocal for the publishing session's own subscriptions.
func (r *Router) Route(msg *packet.Message, fromClientID string) error {
	if msg.Retain {
		r.Retained.Set(msg)
	}

	group, _ := errgroup.WithContext(context.Background())
	r.Sessions.Range(func(sess *session.Session) bool {
		for _, sub := range sess.Subscriptions() {
			if !topic.Match(sub.Filter, msg.TopicName) {
				continue
			}
			if sess.ClientID == fromClientID && sub.NoLocal {
				continue
			}
			sub, sess := sub, sess
			group.Go(func() error {
				r.deliver(sess, msg, effectiveQoS(msg.QoS, sub.QoS), false)
				return nil
			})
		}
		return true
	})
	return group.Wait()
}

// ReplayRetained implements spec §4.7 "new subscription": after
// SUBSCRIBE is accepted, deliver every retained message matching filter
// to sess, each with retain=true and qos=min(retained.qos, requestedQoS).
func (r *Router) ReplayRetained(sess *session.Session, filter string, requestedQoS uint8) {
	for _, msg := range r.Retained.Query(filter) {
		r.deliver(sess, msg, effectiveQoS(msg.QoS, requestedQoS), true)
	}
}

func (r *Router) deliver(sess *session.Session, msg *packet.Message, qos uint8, retain bool) {
	item := session.OutboundItem{Message: msg, QoS: qos, Retain: retain}
	if qos == 0 {
		sess.Enqueue(item)
		return
	}

	id, err := sess.AllocatePacketID()
	if err != nil {
		return // quota exceeded: drop rather than block the publisher
	}
	phase := session.AwaitingPubAck
	if qos == 2 {
		phase = session.AwaitingPubRec
	}
	sess.MarkInFlight(id, msg, phase)
	item.PacketID = id
	sess.Enqueue(item)
}

func effectiveQoS(publishQoS, subQoS uint8) uint8 {
	if publishQoS < subQoS {
		return publishQoS
	}
	return subQoS
}
