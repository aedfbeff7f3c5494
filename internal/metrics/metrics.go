// Package metrics provides Prometheus metrics for collabhub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "collabhub"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// HTTPRateLimited counts requests rejected by the rate limiter.
	HTTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by rate limiting",
		},
		[]string{"scope"}, // user
	)
)

// Collaboration metrics
var (
	// CollaborationsCreated counts new invites and applications.
	CollaborationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaboration",
			Name:      "created_total",
			Help:      "Total collaborations created",
		},
		[]string{"type"},
	)

	// CollaborationTransitions counts accepted and declined collaborations.
	CollaborationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaboration",
			Name:      "transitions_total",
			Help:      "Total collaboration status transitions",
		},
		[]string{"type", "status"},
	)

	// CollaborationRejectedTransitions counts accept/decline attempts on non-pending records.
	CollaborationRejectedTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaboration",
			Name:      "rejected_transitions_total",
			Help:      "Total accept or decline attempts on records no longer pending",
		},
	)
)

// Messaging metrics
var (
	// MessagesSent counts stored messages by kind.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "sent_total",
			Help:      "Total messages sent",
		},
		[]string{"kind"}, // direct, project
	)

	// AttachmentBytes tracks accepted attachment sizes.
	AttachmentBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "attachment_bytes",
			Help:      "Size of accepted message attachments",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// AttachmentsRejected counts attachments refused by policy.
	AttachmentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "attachments_rejected_total",
			Help:      "Total attachments rejected by policy",
		},
		[]string{"reason"}, // size, type
	)

	// UnreadLookups counts unread-count aggregations.
	UnreadLookups = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "unread_lookups_total",
			Help:      "Total unread count lookups",
		},
	)
)

// Notification metrics
var (
	// NotificationsSent counts notifier deliveries by result.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Total notifications handed to a notifier",
		},
		[]string{"notifier", "result"}, // success, error
	)

	// NotificationsRateLimited counts dispatches refused by the limiter.
	NotificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "rate_limited_total",
			Help:      "Total notification dispatches deferred by rate limiting",
		},
	)
)

// Outbox metrics
var (
	// OutboxEventsTotal counts relay outcomes.
	OutboxEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Total outbox events handled by the relay",
		},
		[]string{"event_type", "result"}, // processed, retried, failed
	)

	// OutboxBacklog reports events by status after each relay pass.
	OutboxBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events",
			Help:      "Outbox events by status",
		},
		[]string{"status"},
	)

	// OutboxPollDuration tracks one relay pass.
	OutboxPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one outbox relay pass",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

// Storage metrics
var (
	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
