// Package notifier delivers user notifications to the inbox and to optional
// outside channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/metrics"
	"github.com/good-yellow-bee/collabhub/internal/models"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "store", "slack").
	Name() string
	// Send delivers one notification. Implementations must tolerate
	// receiving the same notification id more than once.
	Send(ctx context.Context, n *models.Notification) error
	// Close releases any resources.
	Close() error
}

type registration struct {
	notifier Notifier
	optional bool
}

// Dispatcher fans a notification out to every registered notifier in
// registration order.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   []registration
	rateLimiter *RateLimiter
	log         *zap.Logger
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig(), log)
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		rateLimiter: NewRateLimiter(config),
		log:         log.Named("notifier"),
	}
}

// Register adds a notifier whose failures fail the dispatch, so the caller
// retries. A notifier with the same name is replaced.
func (d *Dispatcher) Register(n Notifier) {
	d.register(n, false)
}

// RegisterOptional adds a best-effort notifier. Its failures are logged
// and counted but do not fail the dispatch.
func (d *Dispatcher) RegisterOptional(n Notifier) {
	d.register(n, true)
}

func (d *Dispatcher) register(n Notifier, optional bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.notifiers {
		if d.notifiers[i].notifier.Name() == n.Name() {
			d.notifiers[i] = registration{notifier: n, optional: optional}
			return
		}
	}
	d.notifiers = append(d.notifiers, registration{notifier: n, optional: optional})
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.notifiers {
		if d.notifiers[i].notifier.Name() == name {
			d.notifiers = append(d.notifiers[:i], d.notifiers[i+1:]...)
			return
		}
	}
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.notifiers {
		if r.notifier.Name() == name {
			return r.notifier, true
		}
	}
	return nil, false
}

// Names returns registered notifier names in dispatch order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for _, r := range d.notifiers {
		names = append(names, r.notifier.Name())
	}
	return names
}

// ErrNoNotifiers is returned when nothing is registered to deliver to.
var ErrNoNotifiers = errors.New("no notifiers registered")

// Dispatch sends n to every registered notifier. Required notifiers always
// receive it. Optional mirrors share one limiter token per dispatch and are
// skipped while the limiter is exhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("nil notification")
	}

	d.mu.RLock()
	notifiers := make([]registration, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	if len(notifiers) == 0 {
		return ErrNoNotifiers
	}

	mirror := d.allowMirrors(notifiers, n)

	var group errs.Group
	for _, r := range notifiers {
		if r.optional && !mirror {
			continue
		}
		name := r.notifier.Name()
		if err := r.notifier.Send(ctx, n); err != nil {
			metrics.NotificationsSent.WithLabelValues(name, "error").Inc()
			d.log.Warn("notification delivery failed",
				zap.String("notifier", name),
				zap.String("notification_id", n.ID),
				zap.Bool("optional", r.optional),
				zap.Error(err))
			if !r.optional {
				group.Add(fmt.Errorf("%s: %w", name, err))
			}
			continue
		}
		metrics.NotificationsSent.WithLabelValues(name, "success").Inc()
	}

	return group.Err()
}

// allowMirrors takes a limiter token when at least one optional notifier is
// registered.
func (d *Dispatcher) allowMirrors(notifiers []registration, n *models.Notification) bool {
	hasOptional := false
	for _, r := range notifiers {
		if r.optional {
			hasOptional = true
			break
		}
	}
	if !hasOptional || d.rateLimiter == nil || d.rateLimiter.Allow() {
		return hasOptional
	}
	metrics.NotificationsRateLimited.Inc()
	d.log.Debug("optional notifiers rate limited", zap.String("notification_id", n.ID))
	return false
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.rateLimiter == nil {
		return RateLimitStats{}
	}
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var group errs.Group
	for _, r := range d.notifiers {
		if err := r.notifier.Close(); err != nil {
			group.Add(fmt.Errorf("%s: %w", r.notifier.Name(), err))
		}
	}
	d.notifiers = nil
	return group.Err()
}
