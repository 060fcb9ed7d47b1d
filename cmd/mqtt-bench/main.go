// Command mqtt-bench drives N concurrent clients against a broker,
// each publishing on its own bench/N topic once per -interval (default
// one second) while subscribed to that same topic and to the
// single-level filter "+", the same fan-out shape as the teacher's
// cmd/benchmark (one errgroup goroutine per simulated client) adapted
// onto this module's client.Client/config.ClientOptions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coldbrook/mqttd/client"
	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/packet"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	url := flag.String("url", "tcp://127.0.0.1:1883", "broker URL")
	clients := flag.Int("clients", 100, "number of simulated clients")
	interval := flag.Duration("interval", time.Second, "publish interval per client")
	duration := flag.Duration("duration", 30*time.Second, "how long to run before exiting")
	quiet := flag.Bool("quiet", true, "suppress per-message receive logging")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *clients; i++ {
		c, err := client.New(config.NewClientOptions(
			config.WithURL(*url),
			config.WithClientID(fmt.Sprintf("bench-%d", i)),
			config.WithSubscription(
				packet.Subscription{TopicFilter: "+"},
				packet.Subscription{TopicFilter: fmt.Sprintf("bench/%d", i)},
			),
		))
		if err != nil {
			log.Fatalf("new client %d: %v", i, err)
		}
		if !*quiet {
			c.OnMessage(func(msg *packet.Message) {
				log.Printf("client=%d recv topic=%s", i, msg.TopicName)
			})
		}

		group.Go(func() error { return c.Run(ctx) })
		group.Go(func() error {
			ticker := time.NewTicker(*interval)
			defer ticker.Stop()
			topic := fmt.Sprintf("bench/%d", i)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					_ = c.Publish(&packet.Message{TopicName: topic, Content: []byte("hello world")})
				}
			}
		})
	}

	if err := group.Wait(); err != nil && err != context.DeadlineExceeded {
		log.Printf("bench run ended: %v", err)
	}
}
