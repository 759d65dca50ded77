// Package metrics defines every custom Prometheus metric of the clinical
// portal services. It is the single source of truth for metric names,
// labels and help strings.
//
// Metrics are registered with the default registry through promauto when
// the package is imported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinical"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - outcome: "success", "invalid_credentials", "locked", "deactivated", "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// LockoutsTotal counts accounts that entered a lockout window.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Total number of temporary account lockouts.",
	},
)

// TokenRefreshesTotal counts refresh-token redemptions.
// Label:
//   - outcome: "success", "invalid", "revoked", "expired", "error"
var TokenRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh-token redemptions, by outcome.",
	},
	[]string{"outcome"},
)

// ── Messaging metrics ─────────────────────────────────────────────────────────

// EventsPublishedTotal counts publish calls.
// Labels:
//   - exchange, routing_key
//   - result: "delivered" or "failed"
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of envelopes handed to the broker, by result.",
	},
	[]string{"exchange", "routing_key", "result"},
)

// EventsConsumedTotal counts consumer decisions per delivery.
// Labels:
//   - queue
//   - result: "processed", "duplicate", "requeued", "dead_lettered", "malformed"
var EventsConsumedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Total number of deliveries handled by consumers, by result.",
	},
	[]string{"queue", "result"},
)

// DeadLetteredTotal counts messages routed to the parked dead-letter queue.
var DeadLetteredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dead_lettered_total",
		Help:      "Total number of deliveries rejected to the dead-letter exchange.",
	},
	[]string{"queue", "reason"},
)

// BrokerConnectionState is 0 disconnected, 1 connecting, 2 connected.
var BrokerConnectionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broker_connection_state",
		Help:      "Broker connection state per named connection (0=disconnected, 1=connecting, 2=connected).",
	},
	[]string{"connection"},
)

// BrokerReconnectAttemptsTotal counts dial attempts after the first.
var BrokerReconnectAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broker_reconnect_attempts_total",
		Help:      "Total number of broker reconnect attempts, by result.",
	},
	[]string{"connection", "result"},
)

// DispatcherQueueDepth tracks pending deliveries in each worker channel.
var DispatcherQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatcher_queue_depth",
		Help:      "Current number of deliveries pending in each dispatcher worker channel.",
	},
	[]string{"dispatcher", "worker_id"},
)

// HandlerDuration measures a single envelope handler run.
var HandlerDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handler_duration_seconds",
		Help:      "Duration of envelope handlers from dequeue to ack.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"event_type", "result"},
)
