// Package metrics exposes bot counters on a dedicated prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpdesk"

type Metrics struct {
	Registry *prometheus.Registry

	Updates         *prometheus.CounterVec // by kind: command, text, ignored
	HandlerPanics   prometheus.Counter
	GateChecks      *prometheus.CounterVec // by outcome: eligible, not_member, error
	RequestsCreated prometheus.Counter
	Replies         *prometheus.CounterVec // by delivery: delivered, failed
	StatusChanges   *prometheus.CounterVec // by target status
	BroadcastSends  *prometheus.CounterVec // by result: sent, failed, skipped
	Purged          prometheus.Counter
	DashboardConns  prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "updates_total",
			Help: "Telegram updates handled, by kind.",
		}, []string{"kind"}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handler_panics_total",
			Help: "Panics recovered while handling a single update.",
		}),
		GateChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gate_checks_total",
			Help: "Membership gate decisions, by outcome.",
		}, []string{"outcome"}),
		RequestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_created_total",
			Help: "Support requests accepted.",
		}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replies_total",
			Help: "Staff replies stored, by delivery result.",
		}, []string{"delivery"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "status_changes_total",
			Help: "Manual status changes, by target status.",
		}, []string{"status"}),
		BroadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_messages_total",
			Help: "Broadcast recipients, by result.",
		}, []string{"result"}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retention_purged_total",
			Help: "Completed requests removed by retention.",
		}),
		DashboardConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dashboard_connections",
			Help: "Open dashboard websocket connections.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Updates,
		m.HandlerPanics,
		m.GateChecks,
		m.RequestsCreated,
		m.Replies,
		m.StatusChanges,
		m.BroadcastSends,
		m.Purged,
		m.DashboardConns,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
