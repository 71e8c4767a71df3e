// Package metrics exposes Prometheus collectors for the statement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_builder_commands_total",
			Help: "Builder commands executed, by op and result (applied, ignored, error).",
		},
		[]string{"op", "result"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statement_builder_submissions_total",
			Help: "Statements sent to the persistence service, by kind (create, edit) and result.",
		},
		[]string{"kind", "result"},
	)

	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statement_builder_sessions_open",
			Help: "Current number of open editing sessions.",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statement_builder_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(CommandsApplied, Submissions, SessionsOpen, RequestDuration)
}

// Result labels.
const (
	ResultApplied = "applied"
	ResultIgnored = "ignored"
	ResultOK      = "ok"
	ResultError   = "error"
)
