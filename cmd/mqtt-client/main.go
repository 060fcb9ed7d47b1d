// Command mqtt-client connects to a broker, subscribes, and publishes
// a heartbeat message once a second, the same shape as the teacher's
// cmd/mqtt-client but driven through this module's client.Client
// instead of the teacher's own Client/SubmitMessage pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coldbrook/mqttd/client"
	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/packet"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	url := flag.String("url", "tcp://127.0.0.1:1883", "broker URL")
	clientID := flag.String("id", "", "client id (random if empty)")
	topic := flag.String("topic", "bench/heartbeat", "topic to publish a heartbeat to")
	flag.Parse()

	opts := []config.ClientOption{
		config.WithURL(*url),
		config.WithSubscription(
			packet.Subscription{TopicFilter: "+"},
			packet.Subscription{TopicFilter: *topic},
		),
	}
	if *clientID != "" {
		opts = append(opts, config.WithClientID(*clientID))
	}

	c, err := client.New(config.NewClientOptions(opts...))
	if err != nil {
		log.Fatalf("new client: %v", err)
	}
	c.OnMessage(func(msg *packet.Message) {
		log.Printf("recv: topic=%s payload=%s", msg.TopicName, msg.Content)
	})

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.Run(ctx) })

	group.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				msg := &packet.Message{TopicName: *topic, Content: []byte(now.Format(time.RFC3339))}
				if err := c.Publish(msg); err != nil {
					log.Printf("publish: %v", err)
				}
			}
		}
	})

	group.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sig:
			cancel()
			return fmt.Errorf("got signal: %s", s)
		}
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Printf("exiting: %v", err)
	}
	_ = c.Close()
}
