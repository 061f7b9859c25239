// Package slug generates, validates and reserves short codes.
package slug

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/metrics"
	"github.com/edgelink/shortener/internal/model"
)

// DefaultMaxAttempts bounds random reservation probes.
const DefaultMaxAttempts = 3

// Reserver is the atomic create-if-absent half of the slug store.
// TryReserve returns false when the slug already exists.
type Reserver interface {
	TryReserve(ctx context.Context, link *model.Link) (bool, error)
}

type Allocator struct {
	store       Reserver
	gen         *Generator
	reserved    ReservedSet
	maxAttempts int
	metrics     *metrics.Metrics
	log         logger.Logger
}

type Option func(*Allocator)

func WithGenerator(gen *Generator) Option {
	return func(a *Allocator) { a.gen = gen }
}

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func WithReserved(words []string) Option {
	return func(a *Allocator) { a.reserved = NewReservedSet(DefaultReserved, words) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

func WithLogger(log logger.Logger) Option {
	return func(a *Allocator) { a.log = log }
}

func NewAllocator(store Reserver, opts ...Option) *Allocator {
	a := &Allocator{
		store:       store,
		gen:         NewGenerator(),
		reserved:    NewReservedSet(DefaultReserved),
		maxAttempts: DefaultMaxAttempts,
		log:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reject reports whether a generated candidate must not be used for the link
// being allocated.
type Reject func(candidate string) bool

// Allocate reserves a slug for link and stores the record in the same atomic
// operation. With a custom slug it makes exactly one reservation attempt;
// otherwise it draws random slugs up to the attempt bound, skipping any that
// a reject func refuses.
func (a *Allocator) Allocate(ctx context.Context, link *model.Link, custom string, reject ...Reject) (string, error) {
	if custom != "" {
		return a.reserveCustom(ctx, link, custom)
	}
	return a.reserveGenerated(ctx, link, reject)
}

func (a *Allocator) reserveCustom(ctx context.Context, link *model.Link, custom string) (string, error) {
	if err := ValidateCustom(custom, a.reserved); err != nil {
		return "", err
	}

	link.Slug = custom
	ok, err := a.store.TryReserve(ctx, link)
	if err != nil {
		a.metrics.SlugAllocation("error")
		return "", storeFailure(err)
	}
	if !ok {
		a.metrics.SlugAllocation("taken")
		return "", apperrors.ErrSlugTaken
	}

	a.metrics.SlugAllocation("custom")
	return custom, nil
}

func (a *Allocator) reserveGenerated(ctx context.Context, link *model.Link, reject []Reject) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate, err := a.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}

		// A draw that spells a reserved word still costs an attempt.
		if a.reserved.Contains(candidate) || rejected(reject, candidate) {
			continue
		}

		link.Slug = candidate
		ok, err := a.store.TryReserve(ctx, link)
		if err != nil {
			a.metrics.SlugAllocation("error")
			return "", storeFailure(err)
		}
		if ok {
			a.metrics.SlugAllocation("generated")
			return candidate, nil
		}

		a.metrics.SlugAllocation("collision")
		a.log.Warn("Generated slug collided",
			logger.String("slug", candidate),
			logger.Int("attempt", attempt),
		)
	}

	link.Slug = ""
	a.metrics.SlugAllocation("exhausted")
	return "", apperrors.ErrAllocationExhausted
}

func rejected(reject []Reject, candidate string) bool {
	for _, r := range reject {
		if r(candidate) {
			return true
		}
	}
	return false
}

func storeFailure(err error) error {
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	return apperrors.StoreError("reserve", err)
}
