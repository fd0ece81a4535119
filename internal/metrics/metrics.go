// Package metrics exposes the Prometheus collectors of the dispatch service.
// Collectors register on the default registry and are served by the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch outcomes by notification type and result reason ("ok" on success).
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artebot_dispatches_total",
			Help: "Notification dispatches by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artebot_dispatch_duration_seconds",
			Help:    "End-to-end dispatch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	ChannelSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artebot_channel_sends_total",
			Help: "Delivery channel calls by channel and result (ok, rejected, error)",
		},
		[]string{"channel", "result"},
	)

	ChannelSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artebot_channel_send_duration_seconds",
			Help:    "Delivery channel call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "artebot_channel_breaker_state",
			Help: "Circuit breaker state per channel (0 closed, 1 half-open, 2 open)",
		},
		[]string{"channel"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artebot_eventbus_dropped_total",
			Help: "Dispatch events dropped because a subscriber was full",
		},
	)

	AuditErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artebot_audit_errors_total",
			Help: "Audit rows that could not be written",
		},
	)

	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artebot_ingest_messages_total",
			Help: "Consumed lifecycle events by kind and result (ok, skipped, error)",
		},
		[]string{"kind", "result"},
	)

	SummaryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artebot_summary_runs_total",
			Help: "Daily summary job runs by result",
		},
		[]string{"result"},
	)
)

// RecordDispatch records a finished dispatch. reason is empty on success.
func RecordDispatch(notificationType, reason string, took time.Duration) {
	outcome := reason
	if outcome == "" {
		outcome = "ok"
	}
	Dispatches.WithLabelValues(notificationType, outcome).Inc()
	DispatchDuration.WithLabelValues(notificationType).Observe(took.Seconds())
}

// RecordChannelSend records one delivery channel call.
func RecordChannelSend(channel string, success bool, err error, took time.Duration) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !success:
		result = "rejected"
	}
	ChannelSends.WithLabelValues(channel, result).Inc()
	ChannelSendDuration.WithLabelValues(channel).Observe(took.Seconds())
}

// SetBreakerState maps a gobreaker state name onto the gauge.
func SetBreakerState(channel, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(channel).Set(v)
}

func RecordIngest(kind, result string) {
	IngestMessages.WithLabelValues(kind, result).Inc()
}

func RecordSummaryRun(err error) {
	if err != nil {
		SummaryRuns.WithLabelValues("error").Inc()
		return
	}
	SummaryRuns.WithLabelValues("ok").Inc()
}
