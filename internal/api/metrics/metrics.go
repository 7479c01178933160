// Package metrics defines and registers all custom Prometheus metrics for the
// accrual service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on import via
// promauto and exposed by the echoprometheus handler on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accrual"

// ── Accrual metrics ───────────────────────────────────────────────────────────

// SyncsTotal counts sync calls.
// Label:
//   - result: "credited" (at least one period), "noop", or "error"
var SyncsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "syncs_total",
		Help:      "Total number of accrual syncs, labelled by result.",
	},
	[]string{"result"},
)

// PeriodsCreditedTotal counts whole accrual periods credited across all accounts.
var PeriodsCreditedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "periods_credited_total",
		Help:      "Total number of accrual periods credited.",
	},
)

// ── Activation metrics ────────────────────────────────────────────────────────

// ActivationsTotal counts activation attempts.
// Label:
//   - result: "ok", "invalid_code", "already_verified", "not_found", or "error"
var ActivationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activations_total",
		Help:      "Total number of activation attempts, labelled by result.",
	},
	[]string{"result"},
)

// ── Withdrawal metrics ────────────────────────────────────────────────────────

// WithdrawalsTotal counts withdrawal requests.
// Label:
//   - result: "ok", "replayed", "rejected", "notification_failed", or "error"
var WithdrawalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawals_total",
		Help:      "Total number of withdrawal requests, labelled by result.",
	},
	[]string{"result"},
)

// WithdrawnAmountTotal sums the amounts committed to the ledger.
var WithdrawnAmountTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawn_amount_total",
		Help:      "Sum of all withdrawal amounts committed to the ledger.",
	},
)

// NotificationDuration measures how long the withdrawal notifier takes.
// Labels:
//   - notifier: "log", "smtp", or "amqp"
//   - result: "ok" or "error"
var NotificationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_duration_seconds",
		Help:      "Duration of withdrawal notification delivery.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"notifier", "result"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of events waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditDroppedTotal counts audit events that were never queued.
// Label:
//   - reason: "queue_full" or "closed"
var AuditDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit events dropped before persistence.",
	},
	[]string{"reason"},
)

// AuditWriteErrorsTotal counts audit events the repository failed to store.
var AuditWriteErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_errors_total",
		Help:      "Total number of audit events that failed to persist.",
	},
)
