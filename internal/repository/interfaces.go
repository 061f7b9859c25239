package repository

import (
	"context"

	"github.com/edgelink/shortener/internal/model"
)

// LinkRepository is the slug store. TryReserve and IncrementClicks are single
// atomic operations in every implementation.
type LinkRepository interface {
	// TryReserve inserts link if its slug is free and reports whether it did.
	TryReserve(ctx context.Context, link *model.Link) (bool, error)
	Get(ctx context.Context, slug string) (*model.Link, error)
	IncrementClicks(ctx context.Context, slug string) (int64, error)
	// Update writes the owner-mutable fields. click_count is never touched.
	Update(ctx context.Context, link *model.Link) error
	// SetRoutingTier replaces one tier of the routing config; a nil value
	// removes it. Other tiers are left as they are.
	SetRoutingTier(ctx context.Context, slug string, tier model.RoutingType, value any) error
	Delete(ctx context.Context, slug string) error
}

type WebhookRepository interface {
	Create(ctx context.Context, hook *model.Webhook) error
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Webhook, error)
	Delete(ctx context.Context, ownerID, id string) error
}
