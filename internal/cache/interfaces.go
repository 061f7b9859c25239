package cache

import (
	"context"
	"time"
)

// Cache - основной интерфейс для работы с кэшем
type Cache interface {
	// Базовые операции
	Set(ctx context.Context, key string, value interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error

	// Управление соединением
	HealthCheck(ctx context.Context) error
	Close() error
}

// CounterCache - интерфейс для работы со счетчиками
type CounterCache interface {
	GetClickCount(ctx context.Context, slug string) (int64, error)
	SetClickCount(ctx context.Context, slug string, count int64) error
	IncrementVariant(ctx context.Context, testID, variant string) error
	VariantCounts(ctx context.Context, testID string) (map[string]int64, error)
}

// WindowCounter backs the fixed-window rate limiter. It counts one hit on key
// and returns the hit total and the start of the current window, opening a
// new window when none exists or the last one has elapsed.
type WindowCounter interface {
	GetAndMaybeIncrement(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error)
}

// CacheManager - полный интерфейс кэша (композиция интерфейсов)
type CacheManager interface {
	Cache
	CounterCache
	WindowCounter

	Keys() *KeyBuilder
}
