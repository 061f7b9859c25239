package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

const linkColumns = `slug, destination, owner_id, created_at, updated_at, expires_at,
	max_clicks, click_count, password_hash, active, custom_domain, routing`

type PostgresLinkRepository struct {
	db *sql.DB
}

func NewPostgresLinkRepository(db *sql.DB) *PostgresLinkRepository {
	return &PostgresLinkRepository{db: db}
}

// TryReserve relies on the primary key: the insert either claims the slug or
// does nothing, in one statement.
func (r *PostgresLinkRepository) TryReserve(ctx context.Context, link *model.Link) (bool, error) {
	routing, err := encodeRouting(link.Routing)
	if err != nil {
		return false, err
	}

	query := `
	INSERT INTO links (slug, destination, owner_id, created_at, updated_at, expires_at,
		max_clicks, click_count, password_hash, active, custom_domain, routing)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11)
	ON CONFLICT (slug) DO NOTHING
	RETURNING click_count
	`

	var count int64
	err = r.db.QueryRowContext(ctx, query,
		link.Slug,
		link.Destination,
		link.OwnerID,
		link.CreatedAt,
		link.UpdatedAt,
		link.ExpiresAt,
		link.MaxClicks,
		link.PasswordHash,
		link.Active,
		link.CustomDomain,
		routing,
	).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.StoreError("reserve", err)
	}

	link.ClickCount = count
	return true, nil
}

func (r *PostgresLinkRepository) Get(ctx context.Context, slug string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE slug = $1`

	link := &model.Link{}
	var routing []byte
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&link.Slug,
		&link.Destination,
		&link.OwnerID,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.ExpiresAt,
		&link.MaxClicks,
		&link.ClickCount,
		&link.PasswordHash,
		&link.Active,
		&link.CustomDomain,
		&routing,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	if err != nil {
		return nil, apperrors.StoreError("get", err)
	}

	if len(routing) > 0 {
		cfg := &model.RoutingConfig{}
		if err := json.Unmarshal(routing, cfg); err != nil {
			return nil, apperrors.NewBusinessError("DATABASE_ERROR", "failed to decode routing config", err)
		}
		if !cfg.IsEmpty() {
			link.Routing = cfg
		}
	}

	return link, nil
}

// IncrementClicks is a single UPDATE, so concurrent calls never lose a click.
func (r *PostgresLinkRepository) IncrementClicks(ctx context.Context, slug string) (int64, error) {
	query := `
	UPDATE links
	SET click_count = click_count + 1
	WHERE slug = $1
	RETURNING click_count
	`

	var count int64
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	if err != nil {
		return 0, apperrors.StoreError("increment", err)
	}

	return count, nil
}

func (r *PostgresLinkRepository) Update(ctx context.Context, link *model.Link) error {
	query := `
	UPDATE links
	SET destination = $2, active = $3, expires_at = $4, max_clicks = $5,
		password_hash = $6, updated_at = $7
	WHERE slug = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		link.Slug,
		link.Destination,
		link.Active,
		link.ExpiresAt,
		link.MaxClicks,
		link.PasswordHash,
		link.UpdatedAt,
	)
	if err != nil {
		return apperrors.StoreError("update", err)
	}

	return requireRow(res, link.Slug)
}

// SetRoutingTier edits one key of the routing document in place, so updates
// to different tiers never overwrite each other.
func (r *PostgresLinkRepository) SetRoutingTier(ctx context.Context, slug string, tier model.RoutingType, value any) error {
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if isNil(value) {
		query := `
		UPDATE links
		SET routing = COALESCE(routing, '{}'::jsonb) - $2::text, updated_at = $3
		WHERE slug = $1
		`
		res, err = r.db.ExecContext(ctx, query, slug, string(tier), now)
	} else {
		data, mErr := json.Marshal(value)
		if mErr != nil {
			return fmt.Errorf("encode %s routing: %w", tier, mErr)
		}
		query := `
		UPDATE links
		SET routing = jsonb_set(COALESCE(routing, '{}'::jsonb), ARRAY[$2::text], $3::jsonb), updated_at = $4
		WHERE slug = $1
		`
		res, err = r.db.ExecContext(ctx, query, slug, string(tier), string(data), now)
	}
	if err != nil {
		return apperrors.StoreError("routing", err)
	}

	return requireRow(res, slug)
}

func (r *PostgresLinkRepository) Delete(ctx context.Context, slug string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE slug = $1`, slug)
	if err != nil {
		return apperrors.StoreError("delete", err)
	}
	return requireRow(res, slug)
}

func requireRow(res sql.Result, slug string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.StoreError("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("link with slug '%s': %w", slug, apperrors.ErrLinkNotFound)
	}
	return nil
}

func encodeRouting(cfg *model.RoutingConfig) (any, error) {
	if cfg.IsEmpty() {
		return nil, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode routing config: %w", err)
	}
	return string(data), nil
}
