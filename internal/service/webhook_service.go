package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/logger"
	"github.com/edgelink/shortener/internal/model"
	"github.com/edgelink/shortener/internal/utils"
)

const secretBytes = 32

var supportedEvents = map[string]bool{model.EventClick: true}

// CreateWebhook registers a webhook for ownerID. The returned hook carries
// the signing secret; later listings do not.
func (s *LinkService) CreateWebhook(ctx context.Context, ownerID string, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	if err := s.requireWebhooks(ownerID); err != nil {
		return nil, err
	}

	target := utils.SanitizeInput(req.URL)
	if err := utils.ValidateURL("url", target); err != nil {
		return nil, err
	}

	events := req.Events
	if len(events) == 0 {
		events = []string{model.EventClick}
	}
	for _, e := range events {
		if !supportedEvents[e] {
			return nil, apperrors.NewValidationError("events", fmt.Sprintf("unsupported event %q", e))
		}
	}

	if req.Slug != "" {
		if _, err := s.owned(ctx, req.Slug, ownerID); err != nil {
			return nil, err
		}
	}

	secret := req.Secret
	if secret == "" {
		var err error
		if secret, err = newSecret(); err != nil {
			return nil, err
		}
	}

	hook := &model.Webhook{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		URL:       target,
		Secret:    secret,
		Events:    events,
		Slug:      req.Slug,
		CreatedAt: s.now().UTC(),
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.webhooks.Create(ctx, hook); err != nil {
		return nil, err
	}

	s.log.Info("Webhook created",
		logger.String("webhook_id", hook.ID),
		logger.String("owner_id", ownerID),
	)
	return hook, nil
}

func (s *LinkService) ListWebhooks(ctx context.Context, ownerID string) ([]*model.Webhook, error) {
	if err := s.requireWebhooks(ownerID); err != nil {
		return nil, err
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	hooks, err := s.webhooks.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Webhook, 0, len(hooks))
	for _, h := range hooks {
		redacted := *h
		redacted.Secret = ""
		out = append(out, &redacted)
	}
	return out, nil
}

func (s *LinkService) DeleteWebhook(ctx context.Context, ownerID, id string) error {
	if err := s.requireWebhooks(ownerID); err != nil {
		return err
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	return s.webhooks.Delete(ctx, ownerID, id)
}

func (s *LinkService) requireWebhooks(ownerID string) error {
	if s.webhooks == nil {
		return apperrors.NewBusinessError("WEBHOOKS_DISABLED", "webhooks are not enabled", nil)
	}
	if ownerID == "" {
		return apperrors.NewValidationError("owner_id", "webhooks require an owner")
	}
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
