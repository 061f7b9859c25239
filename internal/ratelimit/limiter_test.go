package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink/shortener/internal/cache"
	"github.com/edgelink/shortener/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  cache.NewRedisClientFrom(client, time.Hour, ""),
	}
}

func TestLimiter_FixedWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
			l := New(store, logger.NewNop(), WithClock(clock.Now))
			rule := Rule{Limit: 3, Window: time.Minute}
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				d := l.Check(ctx, "create", "1.2.3.4", rule)
				require.True(t, d.Allowed, "hit %d", i+1)
				assert.Equal(t, 2-i, d.Remaining)
			}

			clock.Advance(20 * time.Second)
			d := l.Check(ctx, "create", "1.2.3.4", rule)
			assert.False(t, d.Allowed)
			assert.Equal(t, 40, d.RetryAfter)

			other := l.Check(ctx, "create", "5.6.7.8", rule)
			assert.True(t, other.Allowed, "identifiers have separate buckets")
			otherOp := l.Check(ctx, "unlock", "1.2.3.4", rule)
			assert.True(t, otherOp.Allowed, "operations have separate buckets")

			clock.Advance(39*time.Second + 500*time.Millisecond)
			d = l.Check(ctx, "create", "1.2.3.4", rule)
			assert.False(t, d.Allowed)
			assert.Equal(t, 1, d.RetryAfter)

			clock.Advance(500 * time.Millisecond)
			d = l.Check(ctx, "create", "1.2.3.4", rule)
			assert.True(t, d.Allowed, "bucket resets at window start + window")
			assert.Equal(t, 2, d.Remaining)
		})
	}
}

func TestLimiter_ConcurrentHitsCountExactly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l := New(store, logger.NewNop())
			rule := Rule{Limit: 10, Window: time.Minute}

			var mu sync.Mutex
			allowed := 0
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if l.Check(context.Background(), "api", "same", rule).Allowed {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 10, allowed)
		})
	}
}

type brokenStore struct{}

func (brokenStore) GetAndMaybeIncrement(context.Context, string, time.Duration, time.Time) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("dial tcp: connection refused")
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(brokenStore{}, logger.NewNop())
	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), "create", "x", Rule{Limit: 1, Window: time.Second})
		assert.True(t, d.Allowed)
	}
}

func TestRetryAfter(t *testing.T) {
	start := time.Unix(1000, 0)
	assert.Equal(t, 60, retryAfter(start, time.Minute, start))
	assert.Equal(t, 30, retryAfter(start, time.Minute, start.Add(29*time.Second+time.Millisecond)))
	assert.Equal(t, 1, retryAfter(start, time.Minute, start.Add(2*time.Minute)))
}
