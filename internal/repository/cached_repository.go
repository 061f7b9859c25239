package repository

import (
	"context"
	"errors"

	"github.com/edgelink/shortener/internal/cache"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/model"
)

// CachedLinkRepository - репозиторий с кэшированием поверх основного хранилища.
// Ошибки кэша логируются и никогда не прерывают операцию.
type CachedLinkRepository struct {
	store LinkRepository
	cache cache.CacheManager
	log   logger.Logger
}

func NewCachedLinkRepository(store LinkRepository, c cache.CacheManager, log logger.Logger) *CachedLinkRepository {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedLinkRepository{store: store, cache: c, log: log}
}

func (r *CachedLinkRepository) TryReserve(ctx context.Context, link *model.Link) (bool, error) {
	ok, err := r.store.TryReserve(ctx, link)
	if err != nil || !ok {
		return ok, err
	}

	// Кэшируем созданную ссылку
	r.put(ctx, link)
	return true, nil
}

// Get serves from the cache when possible. The cached record carries the
// count from when it was cached, so the live counter is laid over it.
func (r *CachedLinkRepository) Get(ctx context.Context, slug string) (*model.Link, error) {
	key := r.cache.Keys().Link(slug)

	var cached model.Link
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		if count, cErr := r.cache.GetClickCount(ctx, slug); cErr == nil && count > cached.ClickCount {
			cached.ClickCount = count
		}
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.log.Warn("Cache read failed, falling back to store",
			logger.String("slug", slug),
			logger.Error(err),
		)
	}

	// Cache miss - идем в хранилище
	link, err := r.store.Get(ctx, slug)
	if err != nil {
		return nil, err
	}

	r.put(ctx, link)
	return link, nil
}

func (r *CachedLinkRepository) IncrementClicks(ctx context.Context, slug string) (int64, error) {
	count, err := r.store.IncrementClicks(ctx, slug)
	if err != nil {
		return 0, err
	}

	// Обновляем счетчик в кэше
	if err := r.cache.SetClickCount(ctx, slug, count); err != nil {
		r.log.Warn("Failed to update click count in cache",
			logger.String("slug", slug),
			logger.Error(err),
		)
	}
	return count, nil
}

func (r *CachedLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if err := r.store.Update(ctx, link); err != nil {
		return err
	}
	r.invalidate(ctx, link.Slug)
	return nil
}

func (r *CachedLinkRepository) SetRoutingTier(ctx context.Context, slug string, tier model.RoutingType, value any) error {
	if err := r.store.SetRoutingTier(ctx, slug, tier, value); err != nil {
		return err
	}
	r.invalidate(ctx, slug)
	return nil
}

func (r *CachedLinkRepository) Delete(ctx context.Context, slug string) error {
	if err := r.store.Delete(ctx, slug); err != nil {
		return err
	}
	r.invalidate(ctx, slug, r.cache.Keys().Clicks(slug))
	return nil
}

func (r *CachedLinkRepository) put(ctx context.Context, link *model.Link) {
	if err := r.cache.Set(ctx, r.cache.Keys().Link(link.Slug), link); err != nil {
		r.log.Warn("Failed to cache link",
			logger.String("slug", link.Slug),
			logger.Error(err),
		)
	}
	// Синхронизируем счетчик кликов с кэшем
	if err := r.cache.SetClickCount(ctx, link.Slug, link.ClickCount); err != nil {
		r.log.Warn("Failed to cache click count",
			logger.String("slug", link.Slug),
			logger.Error(err),
		)
	}
}

// invalidate drops the cached record; extra keys are deleted with it.
func (r *CachedLinkRepository) invalidate(ctx context.Context, slug string, extra ...string) {
	keys := append([]string{r.cache.Keys().Link(slug)}, extra...)
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.log.Warn("Failed to invalidate link cache",
			logger.String("slug", slug),
			logger.Error(err),
		)
	}
}
