package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/packet"
	"github.com/coldbrook/mqttd/server"
)

func TestNewClientParsesURL(t *testing.T) {
	c, err := New(config.NewClientOptions(config.WithURL("tcp://127.0.0.1:1883"), config.WithClientID("a")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.url.Host != "127.0.0.1:1883" {
		t.Errorf("url.Host = %s, want 127.0.0.1:1883", c.url.Host)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := New(config.ClientOptions{URL: "://bad"}); err == nil {
		t.Fatal("New() with malformed URL should error")
	}
}

func TestClientRecvChannelsInitialized(t *testing.T) {
	c, err := New(config.NewClientOptions(config.WithClientID("a")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := range c.recv {
		if c.recv[i] == nil {
			t.Errorf("recv[%#x] is nil", i)
		}
	}
	if cap(c.recv[0x3]) != 256 {
		t.Errorf("PUBLISH recv channel cap = %d, want 256", cap(c.recv[0x3]))
	}
}

func TestClientOnMessage(t *testing.T) {
	c, err := New(config.NewClientOptions(config.WithClientID("a")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var got *packet.Message
	c.OnMessage(func(msg *packet.Message) { got = msg })
	c.onMessage(&packet.Message{TopicName: "t", Content: []byte("v")})
	if got == nil || got.TopicName != "t" {
		t.Errorf("onMessage handler did not run, got = %+v", got)
	}
}

func TestClientDialUsesCustomDialer(t *testing.T) {
	c, err := New(config.NewClientOptions(config.WithClientID("a")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	called := false
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	c.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		called = true
		return local, nil
	}
	if _, err := c.dial(context.Background(), "tcp", "x:1"); err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	if !called {
		t.Error("custom DialContext was not invoked for tcp scheme")
	}
}

// startBroker brings up a real server/ listener for the end-to-end
// Connect/Subscribe/Publish roundtrip below, the same way the teacher's
// integration_test.go drives a live server rather than a mock.
func startBroker(t *testing.T) string {
	t.Helper()
	srv := server.New(config.Default())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ln.Close()
	})
	return ln.Addr().String()
}

func TestClientConnectSubscribePublishRoundTrip(t *testing.T) {
	addr := startBroker(t)

	sub, err := New(config.NewClientOptions(
		config.WithURL("tcp://"+addr),
		config.WithClientID("sub-1"),
		config.WithSubscription(packet.Subscription{TopicFilter: "a/b", MaximumQoS: 1}),
	))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	received := make(chan *packet.Message, 1)
	sub.OnMessage(func(msg *packet.Message) { received <- msg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(ctx) }()

	rwc, err := (&net.Dialer{}).DialContext(context.Background(), "tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	// Give the subscriber time to connect and subscribe before publishing.
	time.Sleep(100 * time.Millisecond)

	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x3, QoS: 1},
		PacketID:    1,
		Message:     &packet.Message{TopicName: "a/b", Content: []byte("hi")},
	}
	connect := &packet.CONNECT{
		FixedHeader:  &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x1},
		ConnectFlags: packet.ConnectFlags(0x02),
		ClientID:     "pub-1",
	}
	if err := connect.Pack(rwc); err != nil {
		t.Fatalf("pack CONNECT: %v", err)
	}
	_ = rwc.SetReadDeadline(time.Now().Add(2 * time.Second))
	ackBuf := make([]byte, 64)
	if _, err := rwc.Read(ackBuf); err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	if err := pub.Pack(rwc); err != nil {
		t.Fatalf("pack PUBLISH: %v", err)
	}

	select {
	case msg := <-received:
		if msg.TopicName != "a/b" || string(msg.Content) != "hi" {
			t.Errorf("received = %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber did not receive PUBLISH")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after ctx cancel")
	}
}
