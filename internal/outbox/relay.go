// Package outbox delivers follow-up actions recorded alongside state changes.
//
// Services enqueue an event in the same transaction as the change that
// caused it. The Relay leases due events, runs the handler registered for
// the event type and records the outcome. Failed handlers are retried with
// exponential backoff until MaxAttempts, after which the event is parked as
// failed for an operator to requeue.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// HandlerFunc performs the side effect of one event. Handlers must be
// idempotent: an event whose lease expires mid-flight is delivered again.
type HandlerFunc func(ctx context.Context, event *models.OutboxEvent) error

// Config configures the relay.
type Config struct {
	PollInterval   time.Duration // How often to look for due events (default: 2s)
	LeaseTTL       time.Duration // How long a leased event is hidden from other pollers (default: 30s)
	BatchSize      int           // Max events per pass (default: 50)
	MaxAttempts    int           // Attempts before an event is parked as failed (default: 8)
	HandlerTimeout time.Duration // Timeout for one handler call (default: 10s)
	Backoff        Backoff
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Second,
		LeaseTTL:       30 * time.Second,
		BatchSize:      50,
		MaxAttempts:    8,
		HandlerTimeout: 10 * time.Second,
		Backoff:        DefaultBackoff(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff = d.Backoff
	}
}

// Option customises a Relay.
type Option func(*Relay)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay drains the outbox.
type Relay struct {
	repo   storage.OutboxRepository
	config Config
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	nudge    chan struct{}
	lastPoll atomic.Int64
	running  atomic.Bool
}

// NewRelay creates a relay over the given outbox repository.
func NewRelay(repo storage.OutboxRepository, config Config, log *zap.Logger, opts ...Option) *Relay {
	config.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{
		repo:     repo,
		config:   config,
		log:      log.Named("outbox"),
		now:      time.Now,
		handlers: make(map[string]HandlerFunc),
		nudge:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for eventType, replacing any previous handler.
func (r *Relay) Handle(eventType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

func (r *Relay) handler(eventType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Nudge asks a running relay to poll now instead of waiting for the ticker.
func (r *Relay) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// Run polls until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("outbox relay already running")
	}
	defer r.running.Store(false)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.log.Info("outbox relay started",
		zap.Duration("interval", r.config.PollInterval),
		zap.Int("max_attempts", r.config.MaxAttempts))

	for {
		if _, err := r.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("outbox pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.nudge:
		}
	}
}

// ProcessDue runs one pass: it leases due events and handles them in order.
// It returns the number of events leased.
func (r *Relay) ProcessDue(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.OutboxPollDuration.Observe(time.Since(start).Seconds())
	}()

	now := r.now()
	r.lastPoll.Store(now.UnixNano())

	leased, err := r.repo.Lease(ctx, r.config.BatchSize, now, r.config.LeaseTTL)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("outbox_lease").Inc()
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}

	for _, event := range leased {
		if ctx.Err() != nil {
			return len(leased), ctx.Err()
		}
		r.dispatch(ctx, event)
	}
	if len(leased) > 0 {
		r.reportBacklog(ctx)
	}
	return len(leased), nil
}

func (r *Relay) reportBacklog(ctx context.Context) {
	counts, err := r.repo.CountByStatus(ctx)
	if err != nil {
		r.log.Debug("count outbox events", zap.Error(err))
		return
	}
	for _, status := range []models.OutboxStatus{
		models.OutboxPending, models.OutboxLeased, models.OutboxProcessed, models.OutboxFailed,
	} {
		metrics.OutboxBacklog.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (r *Relay) dispatch(ctx context.Context, event *models.OutboxEvent) {
	log := r.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	)

	h, ok := r.handler(event.EventType)
	if !ok {
		log.Warn("no handler for outbox event")
		r.fail(ctx, log, event, "no handler registered for "+event.EventType)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, r.config.HandlerTimeout)
	err := h(hctx, event)
	cancel()

	if err == nil {
		if err := r.repo.MarkProcessed(ctx, event.ID, r.now()); err != nil {
			metrics.StorageErrors.WithLabelValues("outbox_mark_processed").Inc()
			log.Error("mark outbox event processed", zap.Error(err))
			return
		}
		metrics.OutboxEventsTotal.WithLabelValues(event.EventType, "processed").Inc()
		log.Debug("outbox event processed")
		return
	}

	attempts := event.AttemptCount + 1
	if attempts >= r.config.MaxAttempts {
		log.Error("outbox event exhausted retries", zap.Int("attempts", attempts), zap.Error(err))
		r.fail(ctx, log, event, err.Error())
		return
	}

	next := r.now().Add(r.config.Backoff.Delay(attempts))
	if err := r.repo.MarkRetry(ctx, event.ID, err.Error(), next); err != nil {
		metrics.StorageErrors.WithLabelValues("outbox_mark_retry").Inc()
		log.Error("reschedule outbox event", zap.Error(err))
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues(event.EventType, "retried").Inc()
	log.Warn("outbox event failed, will retry",
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err))
}

func (r *Relay) fail(ctx context.Context, log *zap.Logger, event *models.OutboxEvent, reason string) {
	if err := r.repo.MarkFailed(ctx, event.ID, reason); err != nil {
		metrics.StorageErrors.WithLabelValues("outbox_mark_failed").Inc()
		log.Error("mark outbox event failed", zap.Error(err))
		return
	}
	metrics.OutboxEventsTotal.WithLabelValues(event.EventType, "failed").Inc()
}

// LastPoll returns the time of the most recent pass, or the zero time.
func (r *Relay) LastPoll() time.Time {
	n := r.lastPoll.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Healthy reports whether a running relay has polled within a few intervals.
func (r *Relay) Healthy() error {
	if !r.running.Load() {
		return fmt.Errorf("outbox relay not running")
	}
	last := r.LastPoll()
	if last.IsZero() {
		return fmt.Errorf("outbox relay has not polled yet")
	}
	if age := r.now().Sub(last); age > 3*r.config.PollInterval+r.config.HandlerTimeout {
		return fmt.Errorf("outbox relay last polled %s ago", age.Round(time.Second))
	}
	return nil
}
