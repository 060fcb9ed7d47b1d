package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldbrook/mqttd/internal/logging"
	"github.com/coldbrook/mqttd/internal/stat"
	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/qos"
	"github.com/coldbrook/mqttd/session"
	"github.com/coldbrook/mqttd/topic"
)

// connState is the broker-side connection FSM (spec §4.8 C8):
// WaitConnect -> Connected -> Closing -> Closed.
type connState int32

const (
	stateWaitConnect connState = iota
	stateConnected
	stateClosing
	stateClosed
)

// connectGrace bounds how long a freshly accepted connection may take
// to send its first CONNECT packet (spec §4.8 WaitConnect).
const connectGrace = 5 * time.Second

// conn is the server side of one accepted network connection,
// generalizing the teacher's conn.go from an HTTP-flavored
// request/response loop onto the spec's explicit FSM and shared
// session/router/qos packages.
type conn struct {
	server *Server
	rwc    net.Conn

	remoteAddr string
	version    byte
	clientID   string
	sess       *session.Session

	state     atomic.Int32
	keepAlive time.Duration
	lastRecv  atomic.Int64 // unix nano

	writeMu sync.Mutex
	readBuf bytes.Buffer

	cleanOnClose bool // set true on a client-initiated DISCONNECT
}

func newConn(s *Server, rwc net.Conn) *conn {
	c := &conn{server: s, rwc: rwc}
	c.state.Store(int32(stateWaitConnect))
	if ra := rwc.RemoteAddr(); ra != nil {
		c.remoteAddr = ra.String()
	}
	return c
}

func (c *conn) getState() connState { return connState(c.state.Load()) }
func (c *conn) setState(s connState) {
	c.state.Store(int32(s))
}

// writePacket serializes pkt onto the wire, serialized against
// concurrent writes from the outbound-delivery goroutine (teacher's
// response.OnSend locks the same way in conn.go).
func (c *conn) writePacket(pkt packet.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := pkt.Pack(c.rwc); err != nil {
		return err
	}
	stat.Default.PacketSent.Inc()
	return nil
}

// readPacket blocks until one full MQTT packet has arrived, reading
// incrementally into c.readBuf and retrying packet.Decode whenever it
// reports ErrIncomplete — the non-blocking codec's network-facing
// complement (spec §4.3).
func (c *conn) readPacket() (packet.Packet, error) {
	tmp := make([]byte, 4096)
	for {
		pkt, _, err := packet.Decode(c.version, &c.readBuf)
		if err == nil {
			c.lastRecv.Store(time.Now().UnixNano())
			stat.Default.PacketReceived.Inc()
			return pkt, nil
		}
		if !errors.Is(err, packet.ErrIncomplete) {
			return nil, err
		}
		n, rerr := c.rwc.Read(tmp)
		if n > 0 {
			c.readBuf.Write(tmp[:n])
			stat.Default.ByteReceived.Add(float64(n))
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

// serve runs the full connection lifecycle: WaitConnect, the Connected
// packet loop (fed by a companion goroutine draining the session's
// outbound queue), and Closing/Closed cleanup including Will
// publication (spec §4.8).
func (c *conn) serve() {
	logging.Infof("connect accepted: remote=%s", c.remoteAddr)
	defer c.close()

	if err := c.rwc.SetReadDeadline(time.Now().Add(connectGrace)); err != nil {
		return
	}
	if err := c.waitConnect(); err != nil {
		logging.Warnf("connect handshake failed: remote=%s, err=%v", c.remoteAddr, err)
		return
	}
	_ = c.rwc.SetReadDeadline(time.Time{})

	c.setState(stateConnected)
	c.server.trackConn(c, true)
	defer c.server.trackConn(c, false)

	done := make(chan struct{})
	go c.pumpOutbound(done)
	defer close(done)

	c.packetLoop()
}

// waitConnect implements stateWaitConnect: the first packet must be
// CONNECT, protocol version and credentials are validated, and a
// session is created or resumed before CONNACK is sent.
func (c *conn) waitConnect() error {
	c.version = packet.VERSION311
	raw, err := c.readPacket()
	if err != nil {
		// CONNECT.Unpack rejects an unknown protocol level during decode,
		// so the CONNACK for it is sent from here.
		if errors.Is(err, packet.ErrUnsupportedProtocolVersion) || errors.Is(err, packet.ErrMalformedProtocolVersion) {
			_ = c.writePacket(&packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0x2}, ConnectReturnCode: packet.ErrUnsupportedProtocolVersion})
		}
		return err
	}

	connect, ok := raw.(*packet.CONNECT)
	if !ok {
		return fmt.Errorf("mqtt: first packet was %T, want CONNECT", raw)
	}

	c.version = connect.Version
	c.clientID = connect.ClientID

	connack := &packet.CONNACK{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0x2}}

	if connect.Version != packet.VERSION310 && connect.Version != packet.VERSION311 && connect.Version != packet.VERSION500 {
		connack.ConnectReturnCode = packet.ErrUnsupportedProtocolVersion
		_ = c.writePacket(connack)
		return packet.ErrUnsupportedProtocolVersion
	}

	if !c.server.Config.Authenticate(connect.Username, connect.Password) {
		connack.ConnectReturnCode = packet.ErrBadUsernameOrPassword
		_ = c.writePacket(connack)
		return packet.ErrBadUsernameOrPassword
	}

	sess, present := c.server.Sessions.GetOrCreate(connect.ClientID, connect.ConnectFlags.CleanStart())
	c.sess = sess
	if connect.WillTopic != "" {
		sess.Will = &packet.Message{TopicName: connect.WillTopic, Content: connect.WillPayload, QoS: connect.WillQoS, Retain: connect.WillRetain}
	}
	c.keepAlive = time.Duration(connect.KeepAlive) * time.Second

	if present {
		connack.SessionPresent = 1
	}
	if err := c.writePacket(connack); err != nil {
		return err
	}
	logging.Infof("client connected: clientId=%s, remote=%s, version=%d", c.clientID, c.remoteAddr, c.version)
	return nil
}

// packetLoop is stateConnected: dispatch every inbound packet until
// the connection closes or a protocol error occurs.
func (c *conn) packetLoop() {
	for {
		if c.keepAlive > 0 {
			_ = c.rwc.SetReadDeadline(time.Now().Add(c.keepAlive * 3 / 2))
		}
		pkt, err := c.readPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Warnf("read error: clientId=%s, err=%v", c.clientID, err)
			}
			return
		}
		if abort := c.dispatch(pkt); abort {
			return
		}
	}
}

// dispatch handles one inbound packet per spec §4.8 Connected, and
// reports whether the packet loop should stop.
func (c *conn) dispatch(pkt packet.Packet) (stop bool) {
	switch p := pkt.(type) {
	case *packet.PUBLISH:
		c.onPublish(p)
	case *packet.PUBACK:
		qos.OnPubAck(c.sess, p.PacketID)
	case *packet.PUBREC:
		if rel, err := qos.OnPubRec(c.sess, c.version, p.PacketID); err == nil {
			_ = c.writePacket(rel)
		}
	case *packet.PUBREL:
		comp, pending := qos.OnInboundPubrel(c.sess, c.version, p.PacketID)
		if pending != nil {
			_ = c.server.Router.Route(pending, c.clientID)
		}
		_ = c.writePacket(comp)
	case *packet.PUBCOMP:
		qos.OnPubComp(c.sess, p.PacketID)
	case *packet.SUBSCRIBE:
		c.onSubscribe(p)
	case *packet.UNSUBSCRIBE:
		c.onUnsubscribe(p)
	case *packet.PINGREQ:
		_ = c.writePacket(&packet.PINGRESP{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0xD}})
	case *packet.DISCONNECT:
		c.cleanOnClose = true
		return true
	case *packet.AUTH:
		// extended auth exchange is not supported: AUTH is ignored and no reply is sent.
	default:
		logging.Warnf("unexpected packet from client: clientId=%s, type=%T", c.clientID, pkt)
	}
	return false
}

func (c *conn) onPublish(p *packet.PUBLISH) {
	msg := p.Message
	msg.QoS = p.QoS
	msg.Retain = p.Retain == 1

	switch p.QoS {
	case 0:
		_ = c.server.Router.Route(msg, c.clientID)
	case 1:
		_ = c.server.Router.Route(msg, c.clientID)
		_ = c.writePacket(&packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0x4}, PacketID: p.PacketID})
	case 2:
		qos.OnInboundPublishQoS2(c.sess, p.PacketID, msg)
		_ = c.writePacket(&packet.PUBREC{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0x5}, PacketID: p.PacketID})
	}
}

func (c *conn) onSubscribe(p *packet.SUBSCRIBE) {
	reasons := make([]packet.ReasonCode, 0, len(p.Subscriptions))
	accepted := make([]packet.Subscription, 0, len(p.Subscriptions))
	for _, sub := range p.Subscriptions {
		if err := topic.ValidateFilter(sub.TopicFilter); err != nil {
			reasons = append(reasons, subscribeFailureCode(c.version))
			continue
		}
		c.server.Sessions.AddSubscription(c.clientID, session.Subscription{Filter: sub.TopicFilter, QoS: sub.MaximumQoS, NoLocal: sub.NoLocal != 0})
		reasons = append(reasons, packet.ReasonCode{Code: sub.MaximumQoS})
		accepted = append(accepted, sub)
	}
	_ = c.writePacket(&packet.SUBACK{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0x9}, PacketID: p.PacketID, ReasonCodes: reasons})

	for _, sub := range accepted {
		c.server.Router.ReplayRetained(c.sess, sub.TopicFilter, sub.MaximumQoS)
	}
}

// subscribeFailureCode is the SUBACK reason code for a rejected filter,
// per the connection's version: 3.1.1's table (§3.9.3) only has 0x80,
// 5.0 has the more specific ErrTopicFilterInvalid.
func subscribeFailureCode(version byte) packet.ReasonCode {
	if version == packet.VERSION500 {
		return packet.ErrTopicFilterInvalid
	}
	return packet.CodeUnspecified
}

func (c *conn) onUnsubscribe(p *packet.UNSUBSCRIBE) {
	for _, filter := range p.Filters {
		c.server.Sessions.RemoveSubscription(c.clientID, filter)
	}
	_ = c.writePacket(&packet.UNSUBACK{FixedHeader: &packet.FixedHeader{Version: c.version, Kind: 0xB}, PacketID: p.PacketID})
}

// pumpOutbound drains the session's outbound queue onto the wire,
// turning each queued delivery into the correct PUBLISH (spec §4.10
// "Send PUBLISH(dup=0, id)").
func (c *conn) pumpOutbound(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case item, ok := <-c.sess.Outbound:
			if !ok {
				return
			}
			pub := qos.BeginPublish(c.version, item)
			if err := c.writePacket(pub); err != nil {
				logging.Warnf("write error: clientId=%s, err=%v", c.clientID, err)
				return
			}
		}
	}
}

// close implements Closing/Closed: publish the Will on an abnormal
// close, then retain or discard the session per CleanSession.
func (c *conn) close() {
	c.setState(stateClosing)
	_ = c.rwc.Close()

	if c.sess != nil {
		if !c.cleanOnClose && c.sess.Will != nil {
			_ = c.server.Router.Route(c.sess.Will, c.clientID)
		}
		if c.sess.CleanSession {
			c.server.Sessions.Take(c.clientID)
		} else {
			c.server.Sessions.Retain(c.sess)
		}
	}
	logging.Infof("client disconnected: clientId=%s, remote=%s", c.clientID, c.remoteAddr)
	c.setState(stateClosed)
}
