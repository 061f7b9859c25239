// Package ratelimit implements a fixed-window request limiter keyed by
// operation and identifier.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/metrics"
)

// Store counts hits per key. Implementations must make the read and the
// increment one atomic step.
type Store interface {
	GetAndMaybeIncrement(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, windowStart time.Time, err error)
}

// Rule is a limit of Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed bool
	// RetryAfter is whole seconds until the window resets, set only when the
	// request is denied.
	RetryAfter int
	Remaining  int
}

type Limiter struct {
	store   Store
	keys    func(operation, identifier string) string
	now     func() time.Time
	log     logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

// WithKeyFunc overrides how (operation, identifier) maps to a store key.
func WithKeyFunc(fn func(operation, identifier string) string) Option {
	return func(l *Limiter) { l.keys = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(store Store, log logger.Logger, opts ...Option) *Limiter {
	if log == nil {
		log = logger.NewNop()
	}
	l := &Limiter{
		store: store,
		keys:  func(op, id string) string { return "rate:" + op + ":" + id },
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one hit for (operation, identifier). When the store fails the
// request is allowed and the failure logged.
func (l *Limiter) Check(ctx context.Context, operation, identifier string, rule Rule) Decision {
	now := l.now()
	key := l.keys(operation, identifier)

	count, start, err := l.store.GetAndMaybeIncrement(ctx, key, rule.Window, now)
	if err != nil {
		l.log.Error("Rate limit store unavailable, allowing request",
			logger.String("operation", operation),
			logger.String("key", key),
			logger.Error(err),
		)
		l.metrics.RateLimit(operation, "fail_open")
		return Decision{Allowed: true}
	}

	if count <= int64(rule.Limit) {
		l.metrics.RateLimit(operation, "allowed")
		return Decision{Allowed: true, Remaining: rule.Limit - int(count)}
	}

	l.metrics.RateLimit(operation, "denied")
	return Decision{Allowed: false, RetryAfter: retryAfter(start, rule.Window, now)}
}

func retryAfter(start time.Time, window time.Duration, now time.Time) int {
	left := start.Add(window).Sub(now)
	secs := int(math.Ceil(left.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
