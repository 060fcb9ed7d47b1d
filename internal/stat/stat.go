// Package stat carries the broker's Prometheus metrics, expanded from
// the teacher's stat.go with gauges for the broker-specific state the
// teacher never tracked: retained-message count, session count, and
// in-flight message count (spec §4.5/§4.6/§4.7 counters).
package stat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Stat struct {
	Uptime            prometheus.Counter
	ActiveConnections prometheus.Gauge
	PacketReceived    prometheus.Counter
	ByteReceived      prometheus.Counter
	PacketSent        prometheus.Counter
	ByteSent          prometheus.Counter
	Sessions          prometheus.Gauge
	RetainedMessages  prometheus.Gauge
	InFlightMessages  prometheus.Gauge
}

var Default = Stat{
	Uptime:            prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_uptime_seconds", Help: "The uptime in seconds"}),
	ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_active_client_count", Help: "The active number of MQTT clients"}),
	PacketReceived:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_received_packets", Help: "The total number of received MQTT packets"}),
	ByteReceived:      prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_received_bytes", Help: "The total number of received MQTT bytes"}),
	PacketSent:        prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_send_packets", Help: "The total number of send MQTT packets"}),
	ByteSent:          prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_send_bytes", Help: "The total number of send MQTT bytes"}),
	Sessions:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_session_count", Help: "The number of sessions held by the broker"}),
	RetainedMessages:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_retained_message_count", Help: "The number of retained messages held by the broker"}),
	InFlightMessages:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_inflight_message_count", Help: "The number of QoS 1/2 messages currently in flight"}),
}

func (s *Stat) Register() {
	prometheus.MustRegister(
		s.Uptime, s.ActiveConnections, s.PacketReceived, s.ByteReceived,
		s.PacketSent, s.ByteSent, s.Sessions, s.RetainedMessages, s.InFlightMessages,
	)
}

func (s *Stat) RefreshUptime() {
	go func() {
		tick := time.NewTicker(time.Second)
		for range tick.C {
			s.Uptime.Inc()
		}
	}()
}
