package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

type PostgresWebhookRepository struct {
	db *sql.DB
}

func NewPostgresWebhookRepository(db *sql.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

func (r *PostgresWebhookRepository) Create(ctx context.Context, hook *model.Webhook) error {
	events, err := json.Marshal(hook.Events)
	if err != nil {
		return fmt.Errorf("encode webhook events: %w", err)
	}

	query := `
	INSERT INTO webhooks (id, owner_id, url, secret, events, slug, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var slug *string
	if hook.Slug != "" {
		slug = &hook.Slug
	}

	if _, err := r.db.ExecContext(ctx, query,
		hook.ID, hook.OwnerID, hook.URL, hook.Secret, string(events), slug, hook.CreatedAt,
	); err != nil {
		return apperrors.StoreError("create webhook", err)
	}
	return nil
}

func (r *PostgresWebhookRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Webhook, error) {
	query := `
	SELECT id, owner_id, url, secret, events, slug, created_at
	FROM webhooks
	WHERE owner_id = $1
	ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, apperrors.StoreError("list webhooks", err)
	}
	defer rows.Close()

	var hooks []*model.Webhook
	for rows.Next() {
		var (
			h      model.Webhook
			events []byte
			slug   sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.URL, &h.Secret, &events, &slug, &h.CreatedAt); err != nil {
			return nil, apperrors.StoreError("scan webhook", err)
		}
		if err := json.Unmarshal(events, &h.Events); err != nil {
			return nil, fmt.Errorf("decode webhook %s events: %w", h.ID, err)
		}
		h.Slug = slug.String
		hooks = append(hooks, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreError("list webhooks", err)
	}

	return hooks, nil
}

func (r *PostgresWebhookRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return apperrors.StoreError("delete webhook", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.StoreError("delete webhook", err)
	}
	if n == 0 {
		return apperrors.ErrWebhookNotFound
	}
	return nil
}
