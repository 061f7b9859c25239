package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Проверяем, что RedisClient реализует все интерфейсы
var (
	_ Cache         = (*RedisClient)(nil)
	_ CounterCache  = (*RedisClient)(nil)
	_ WindowCounter = (*RedisClient)(nil)
	_ CacheManager  = (*RedisClient)(nil)
)

// fixedWindowScript opens a window on the first hit or once the previous one
// has elapsed, and otherwise adds the hit to the open window. Every hit is
// counted, including ones the caller will reject.
//
// KEYS[1] window hash, ARGV[1] window in ms, ARGV[2] now in unix ms.
// Returns {count, window_start_ms}.
var fixedWindowScript = redis.NewScript(`
local window = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
if (not start) or (now >= start + window) then
	redis.call('HSET', KEYS[1], 'start', ARGV[2], 'count', 1)
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, now}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start}
`)

// maxCountScript stores ARGV[1] only when it is greater than the current
// value, so concurrent writers can only move the counter forward.
//
// KEYS[1] counter, ARGV[1] count, ARGV[2] ttl in ms (0 keeps no expiry).
var maxCountScript = redis.NewScript(`
local count = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]))
if current and current >= count then
	return current
end
redis.call('SET', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return count
`)

// RedisClient - реализация кэша на основе Redis
type RedisClient struct {
	client     *redis.Client
	ttl        time.Duration
	keyBuilder *KeyBuilder
}

// RedisConfig - конфигурация для Redis
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	CacheTTL     int    // в секундах
	Namespace    string // опциональный namespace для ключей
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Проверяем подключение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, NewCacheError("connect", "", fmt.Errorf("%w: %w", ErrCacheConnectionFailed, err))
	}

	return NewRedisClientFrom(client, time.Duration(cfg.CacheTTL)*time.Second, cfg.Namespace), nil
}

// NewRedisClientFrom wraps an existing client without pinging it.
func NewRedisClientFrom(client *redis.Client, ttl time.Duration, namespace string) *RedisClient {
	return &RedisClient{
		client:     client,
		ttl:        ttl,
		keyBuilder: NewKeyBuilder(namespace),
	}
}

// === Реализация интерфейса Cache ===

// Set сохраняет значение в кэш с дефолтным TTL
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}) error {
	return r.SetWithTTL(ctx, key, value, r.ttl)
}

// SetWithTTL сохраняет значение с кастомным TTL
func (r *RedisClient) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return NewCacheError("set", key, ErrInvalidCacheKey)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return NewCacheError("set", key, fmt.Errorf("failed to marshal value: %w", err))
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return NewCacheError("set", key, err)
	}

	return nil
}

// Get получает значение из кэша
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return NewCacheError("get", key, ErrInvalidCacheKey)
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return NewCacheError("get", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return NewCacheError("get", key, fmt.Errorf("failed to unmarshal value: %w", err))
	}

	return nil
}

// Delete удаляет значения из кэша
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	// Фильтруем пустые ключи
	validKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys = append(validKeys, key)
		}
	}

	if len(validKeys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, validKeys...).Err(); err != nil {
		return NewCacheError("delete", "", err)
	}

	return nil
}

// HealthCheck проверяет соединение с Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping", "", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisClient) Close() error {
	if err := r.client.Close(); err != nil {
		return NewCacheError("close", "", err)
	}
	return nil
}

// === Реализация интерфейса CounterCache ===

// GetClickCount получает количество кликов из кэша
func (r *RedisClient) GetClickCount(ctx context.Context, slug string) (int64, error) {
	key := r.keyBuilder.Clicks(slug)

	result, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, NewCacheError("get", key, err)
	}

	return result, nil
}

// SetClickCount stores the authoritative count returned by the store. A lower
// value never replaces a higher one, so out-of-order workers cannot move the
// cached count backwards.
func (r *RedisClient) SetClickCount(ctx context.Context, slug string, count int64) error {
	key := r.keyBuilder.Clicks(slug)

	// Храним счетчики дольше обычного кэша
	ttl := r.ttl * 24
	if err := maxCountScript.Run(ctx, r.client, []string{key}, count, ttl.Milliseconds()).Err(); err != nil {
		return NewCacheError("set", key, err)
	}

	return nil
}

// IncrementVariant bumps the click counter of one A/B variant.
func (r *RedisClient) IncrementVariant(ctx context.Context, testID, variant string) error {
	key := r.keyBuilder.ABTest(testID)

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, variant, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl*24*30)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return NewCacheError("increment", key, err)
	}

	return nil
}

func (r *RedisClient) VariantCounts(ctx context.Context, testID string) (map[string]int64, error) {
	key := r.keyBuilder.ABTest(testID)

	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, NewCacheError("get", key, err)
	}

	counts := make(map[string]int64, len(raw))
	for variant, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, NewCacheError("get", key, fmt.Errorf("variant %s: %w", variant, err))
		}
		counts[variant] = n
	}

	return counts, nil
}

// === Реализация интерфейса WindowCounter ===

// GetAndMaybeIncrement runs the fixed-window script, so the read and the
// increment are a single atomic step on the server.
func (r *RedisClient) GetAndMaybeIncrement(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	res, err := fixedWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, NewCacheError("window", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, NewCacheError("window", key, ErrUnexpectedReply)
	}

	return res[0], time.UnixMilli(res[1]), nil
}

// Keys возвращает построитель ключей
func (r *RedisClient) Keys() *KeyBuilder {
	return r.keyBuilder
}
