// Package server implements the MQTT broker's network listener and
// per-connection FSM (spec §4.8, C8), adapted from the teacher's
// server.go (Server/Serve/Shutdown/ListenAndServe, trackConn/
// trackListener, exponential-backoff Shutdown polling) onto this
// module's session/router/qos packages in place of the teacher's
// conn-held InFight/subscribeTopics state.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldbrook/mqttd/config"
	"github.com/coldbrook/mqttd/internal/logging"
	"github.com/coldbrook/mqttd/internal/stat"
	"github.com/coldbrook/mqttd/retained"
	"github.com/coldbrook/mqttd/router"
	"github.com/coldbrook/mqttd/session"
)

// shutdownPollIntervalMax bounds how long Shutdown waits between
// checks for quiescence (teacher's server.go constant, same value).
const shutdownPollIntervalMax = 500 * time.Millisecond

// ErrServerClosed is returned by Serve/ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("mqtt: server closed")

// Server owns one broker's listeners and the session/router state
// shared by every accepted connection.
type Server struct {
	Config   *config.Config
	Sessions *session.Store
	Router   *router.Router

	TLSConfig *tls.Config

	inShutdown atomic.Bool

	mu            sync.RWMutex
	listeners     map[*net.Listener]struct{}
	activeConn    map[*conn]struct{}
	listenerGroup sync.WaitGroup
}

// New builds a Server ready to Serve, wiring a fresh session registry
// and retained-message store into a Router (spec §4.7).
func New(cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	sessions := session.NewStore()
	ret := retained.New()
	return &Server{
		Config:     cfg,
		Sessions:   sessions,
		Router:     router.New(sessions, ret),
		listeners:  make(map[*net.Listener]struct{}),
		activeConn: make(map[*conn]struct{}),
	}
}

// Serve accepts connections from l, spawning one conn goroutine per
// accepted socket. It always returns a non-nil error; ErrServerClosed
// after a graceful Shutdown.
func (s *Server) Serve(l net.Listener) error {
	defer l.Close()
	if !s.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer s.trackListener(&l, false)

	for {
		rw, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			return err
		}
		c := newConn(s, rw)
		go c.serve()
	}
}

// ListenAndServe resolves listen (e.g. "tcp://0.0.0.0:1883") and serves it.
func (s *Server) ListenAndServe(listen string) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	u, err := url.Parse(listen)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return err
	}
	logging.Infof("mqtt serve: %s", u.Host)
	return s.Serve(ln)
}

// ListenAndServeTLS mirrors ListenAndServe over a TLS listener built
// from certFile/keyFile (teacher's server.go ServeTLS/ListenAndServeTLS).
func (s *Server) ListenAndServeTLS(listen, certFile, keyFile string) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	u, err := url.Parse(listen)
	if err != nil {
		return err
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	ln, err := tls.Listen("tcp", u.Host, tlsCfg)
	if err != nil {
		return err
	}
	logging.Infof("mqtt(s) serve: %s", u.Host)
	return s.Serve(ln)
}

// Shutdown closes all listeners, then polls with exponential backoff
// (teacher's server.go Shutdown) until every connection has closed or
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	lnerr := s.closeListenersLocked()
	conns := make([]*conn, 0, len(s.activeConn))
	for c := range s.activeConn {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	s.listenerGroup.Wait()

	for _, c := range conns {
		_ = c.rwc.Close()
	}

	pollIntervalBase := time.Millisecond
	nextPollInterval := func() time.Duration {
		interval := pollIntervalBase + time.Duration(rand.Intn(int(pollIntervalBase/10+1)))
		pollIntervalBase *= 2
		if pollIntervalBase > shutdownPollIntervalMax {
			pollIntervalBase = shutdownPollIntervalMax
		}
		return interval
	}

	timer := time.NewTimer(nextPollInterval())
	defer timer.Stop()
	for {
		if s.quiescent() {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(nextPollInterval())
		}
	}
}

func (s *Server) quiescent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activeConn) == 0
}

func (s *Server) closeListenersLocked() error {
	var err error
	for ln := range s.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) trackConn(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		stat.Default.ActiveConnections.Inc()
		stat.Default.Sessions.Set(float64(s.Sessions.Len()))
		s.activeConn[c] = struct{}{}
	} else {
		stat.Default.ActiveConnections.Dec()
		delete(s.activeConn, c)
	}
}

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.shuttingDown() {
			return false
		}
		s.listeners[ln] = struct{}{}
		s.listenerGroup.Add(1)
	} else {
		delete(s.listeners, ln)
		s.listenerGroup.Done()
	}
	return true
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

// Healthy reports whether the server is accepting connections, for
// internal/adminhttp's /healthz.
func (s *Server) Healthy() bool {
	return !s.shuttingDown()
}
