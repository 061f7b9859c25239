package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

// MemoryLinkRepository keeps links in process memory. The mutex is held only
// for map work, which makes every method atomic for a single process.
type MemoryLinkRepository struct {
	mu    sync.RWMutex
	links map[string]*model.Link
}

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{links: make(map[string]*model.Link)}
}

func (r *MemoryLinkRepository) TryReserve(_ context.Context, link *model.Link) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[link.Slug]; exists {
		return false, nil
	}
	link.ClickCount = 0
	r.links[link.Slug] = copyLink(link)
	return true, nil
}

func (r *MemoryLinkRepository) Get(_ context.Context, slug string) (*model.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[slug]
	if !ok {
		return nil, fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	return copyLink(link), nil
}

func (r *MemoryLinkRepository) IncrementClicks(_ context.Context, slug string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[slug]
	if !ok {
		return 0, fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	link.ClickCount++
	return link.ClickCount, nil
}

func (r *MemoryLinkRepository) Update(_ context.Context, link *model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.links[link.Slug]
	if !ok {
		return fmt.Errorf("link with slug '%s': %w", link.Slug, apperrors.ErrLinkNotFound)
	}
	updated := copyLink(link)
	stored.Destination = updated.Destination
	stored.Active = updated.Active
	stored.ExpiresAt = updated.ExpiresAt
	stored.MaxClicks = updated.MaxClicks
	stored.PasswordHash = updated.PasswordHash
	stored.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *MemoryLinkRepository) SetRoutingTier(_ context.Context, slug string, tier model.RoutingType, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.links[slug]
	if !ok {
		return fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	cfg, err := applyTier(stored.Routing, tier, value)
	if err != nil {
		return err
	}
	stored.Routing = cfg
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryLinkRepository) Delete(_ context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[slug]; !ok {
		return fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	delete(r.links, slug)
	return nil
}

func copyLink(l *model.Link) *model.Link {
	cp := *l
	if l.Routing != nil {
		cp.Routing = l.Routing.Clone()
	}
	cp.OwnerID = copyPtr(l.OwnerID)
	cp.ExpiresAt = copyPtr(l.ExpiresAt)
	cp.MaxClicks = copyPtr(l.MaxClicks)
	cp.PasswordHash = copyPtr(l.PasswordHash)
	cp.CustomDomain = copyPtr(l.CustomDomain)
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type MemoryWebhookRepository struct {
	mu    sync.RWMutex
	hooks map[string]*model.Webhook
}

func NewMemoryWebhookRepository() *MemoryWebhookRepository {
	return &MemoryWebhookRepository{hooks: make(map[string]*model.Webhook)}
}

func (r *MemoryWebhookRepository) Create(_ context.Context, hook *model.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *hook
	cp.Events = append([]string(nil), hook.Events...)
	r.hooks[hook.ID] = &cp
	return nil
}

func (r *MemoryWebhookRepository) ListByOwner(_ context.Context, ownerID string) ([]*model.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Webhook
	for _, h := range r.hooks {
		if h.OwnerID == ownerID {
			cp := *h
			cp.Events = append([]string(nil), h.Events...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryWebhookRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hooks[id]
	if !ok || h.OwnerID != ownerID {
		return apperrors.ErrWebhookNotFound
	}
	delete(r.hooks, id)
	return nil
}
