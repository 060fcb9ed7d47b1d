// Package adminhttp is the broker's admin surface: /metrics and
// /healthz. Adapted from the teacher's Httpd (stat.go), narrowed to
// drop the federation endpoints (/ping, /send, /list — spec's
// cluster/bridge non-goal) while keeping the same
// github.com/golang-io/requests server wiring.
package adminhttp

import (
	"context"
	"net/http"
	"net/url"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coldbrook/mqttd/internal/logging"
	"github.com/coldbrook/mqttd/internal/stat"
)

// Serve starts the admin HTTP server on listen (a scheme-prefixed
// address like "tcp://127.0.0.1:9090", matching config.Listen.URL) and
// blocks until it exits.
func Serve(listen string, healthy func() bool) error {
	stat.Default.Register()
	stat.Default.RefreshUptime()

	u, err := url.Parse(listen)
	if err != nil {
		return err
	}

	mux := requests.NewServeMux(requests.URL(u.Host))
	mux.Route("/metrics", promhttp.Handler())
	mux.Route("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	srv := requests.NewServer(context.Background(), mux, requests.OnStart(func(s *http.Server) {
		logging.Infof("admin http serve: %s", s.Addr)
	}))
	return srv.ListenAndServe()
}
