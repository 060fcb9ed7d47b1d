package server

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/packet"
)

func startTestServer(t *testing.T, cfg *config.Config) (*Server, net.Listener) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	srv := New(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	return srv, ln
}

func connectTestClient(t *testing.T, addr string, clientID string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	connect := &packet.CONNECT{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x1},
		ConnectFlags: packet.ConnectFlags(0x02), // CleanStart
		KeepAlive:    0,
		ClientID:     clientID,
	}
	if err := connect.Pack(conn); err != nil {
		t.Fatalf("pack CONNECT: %v", err)
	}
	ack, err := readOnePacket(t, conn)
	if err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	connack, ok := ack.(*packet.CONNACK)
	if !ok {
		t.Fatalf("got %T, want CONNACK", ack)
	}
	if connack.ConnectReturnCode.Code != 0 {
		t.Fatalf("CONNACK reason = %#x, want success", connack.ConnectReturnCode.Code)
	}
	return conn
}

func readOnePacket(t *testing.T, conn net.Conn) (packet.Packet, error) {
	t.Helper()
	var buf bytes.Buffer
	tmp := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		pkt, _, err := packet.Decode(packet.VERSION311, &buf)
		if err == nil {
			return pkt, nil
		}
		n, rerr := conn.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

func TestServerAcceptsConnectAndSendsConnack(t *testing.T) {
	srv, ln := startTestServer(t, nil)
	defer srv.Shutdown(context.Background())
	defer ln.Close()

	conn := connectTestClient(t, ln.Addr().String(), "client-1")
	defer conn.Close()
}

func TestServerRejectsBadCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.AllowAnon = false
	cfg.Auth = map[string]string{"root": "secret"}
	srv, ln := startTestServer(t, cfg)
	defer srv.Shutdown(context.Background())
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	connect := &packet.CONNECT{
		FixedHeader:  &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x1},
		ConnectFlags: packet.ConnectFlags(0x82), // CleanStart + UserName
		ClientID:     "bad-client",
		Username:     "root",
		Password:     "wrong",
	}
	if err := connect.Pack(conn); err != nil {
		t.Fatalf("pack CONNECT: %v", err)
	}
	ack, err := readOnePacket(t, conn)
	if err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	connack := ack.(*packet.CONNACK)
	const wantV311BadUsernameOrPassword = 0x04 // MQTT 3.1.1 CONNACK return code table [MQTT-3.2.2-3]
	if connack.ConnectReturnCode.Code != wantV311BadUsernameOrPassword {
		t.Errorf("CONNACK reason = %#x, want %#x", connack.ConnectReturnCode.Code, wantV311BadUsernameOrPassword)
	}
}

func TestServerPubSubRoundTrip(t *testing.T) {
	srv, ln := startTestServer(t, nil)
	defer srv.Shutdown(context.Background())
	defer ln.Close()

	sub := connectTestClient(t, ln.Addr().String(), "subscriber")
	defer sub.Close()

	subscribe := &packet.SUBSCRIBE{
		FixedHeader:   &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x8, QoS: 1},
		PacketID:      1,
		Subscriptions: []packet.Subscription{{TopicFilter: "sensors/temp", MaximumQoS: 0}},
	}
	if err := subscribe.Pack(sub); err != nil {
		t.Fatalf("pack SUBSCRIBE: %v", err)
	}
	if _, err := readOnePacket(t, sub); err != nil {
		t.Fatalf("read SUBACK: %v", err)
	}

	pub := connectTestClient(t, ln.Addr().String(), "publisher")
	defer pub.Close()

	publish := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x3},
		Message:     &packet.Message{TopicName: "sensors/temp", Content: []byte("21.5")},
	}
	if err := publish.Pack(pub); err != nil {
		t.Fatalf("pack PUBLISH: %v", err)
	}

	got, err := readOnePacket(t, sub)
	if err != nil {
		t.Fatalf("subscriber did not receive PUBLISH: %v", err)
	}
	delivered, ok := got.(*packet.PUBLISH)
	if !ok {
		t.Fatalf("got %T, want PUBLISH", got)
	}
	if delivered.Message.TopicName != "sensors/temp" || string(delivered.Message.Content) != "21.5" {
		t.Errorf("delivered message = %+v", delivered.Message)
	}
}

func TestServerShutdownClosesActiveConns(t *testing.T) {
	srv, ln := startTestServer(t, nil)
	defer ln.Close()

	conn := connectTestClient(t, ln.Addr().String(), "shutdown-client")
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
