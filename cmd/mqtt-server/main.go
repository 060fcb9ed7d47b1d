// Command mqtt-server runs the broker (spec §4.8 C8), wiring the
// config-loaded listeners, the admin HTTP surface, and graceful
// shutdown on signal together the way the teacher's cmd/mqtt-server
// wires ListenAndServe/ListenAndServeTLS/Httpd with an errgroup.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/internal/adminhttp"
	"github.com/coldbrook/mqttd/internal/logging"
	"github.com/coldbrook/mqttd/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "", "path to a JSON config file (defaults baked in if empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	srv := server.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if cfg.MQTT.URL == "" {
			return nil
		}
		return srv.ListenAndServe(cfg.MQTT.URL)
	})
	group.Go(func() error {
		if cfg.MQTTs.URL == "" {
			return nil
		}
		return srv.ListenAndServeTLS(cfg.MQTTs.URL, cfg.MQTTs.CertFile, cfg.MQTTs.KeyFile)
	})
	group.Go(func() error {
		if cfg.HTTP.URL == "" {
			return nil
		}
		return adminhttp.Serve(cfg.HTTP.URL, srv.Healthy)
	})
	group.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sig:
			logging.Infof("received signal %s, shutting down", s)
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ConnectWait)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		}
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}
