package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

func newMockRepo(t *testing.T) (*PostgresLinkRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresLinkRepository(db), mock
}

var linkRowColumns = []string{
	"slug", "destination", "owner_id", "created_at", "updated_at", "expires_at",
	"max_clicks", "click_count", "password_hash", "active", "custom_domain", "routing",
}

func TestPostgresLinkRepository_TryReserve(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	link := &model.Link{
		Slug:        "abc123",
		Destination: "https://example.com",
		CreatedAt:   now,
		UpdatedAt:   now,
		Active:      true,
		Routing:     &model.RoutingConfig{Geo: map[string]string{"US": "https://us.example.com"}},
	}

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantOK  bool
		wantErr error
	}{
		{
			name: "claims free slug",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO links").
					WithArgs("abc123", "https://example.com", nil, now, now, nil, nil, nil, true, nil,
						`{"geo":{"US":"https://us.example.com"}}`).
					WillReturnRows(sqlmock.NewRows([]string{"click_count"}).AddRow(0))
			},
			wantOK: true,
		},
		{
			name: "conflict returns false",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO links .* ON CONFLICT \\(slug\\) DO NOTHING").
					WillReturnError(sql.ErrNoRows)
			},
			wantOK: false,
		},
		{
			name: "database failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("INSERT INTO links").WillReturnError(sql.ErrConnDone)
			},
			wantErr: apperrors.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.setup(mock)

			ok, err := repo.TryReserve(context.Background(), link)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresLinkRepository_Get(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	t.Run("found with routing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := sqlmock.NewRows(linkRowColumns).AddRow(
			"abc123", "https://example.com", "owner-1", now, now, nil,
			int64(10), int64(4), nil, true, nil,
			[]byte(`{"device":{"mobile":"https://m.example.com"}}`),
		)
		mock.ExpectQuery("SELECT .* FROM links WHERE slug = \\$1").WithArgs("abc123").WillReturnRows(rows)

		link, err := repo.Get(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", link.Owner())
		assert.Equal(t, int64(4), link.ClickCount)
		require.NotNil(t, link.MaxClicks)
		assert.Equal(t, int64(10), *link.MaxClicks)
		assert.Nil(t, link.ExpiresAt)
		assert.False(t, link.HasPassword())
		require.NotNil(t, link.Routing)
		assert.Equal(t, "https://m.example.com", link.Routing.Device["mobile"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("found without routing", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := sqlmock.NewRows(linkRowColumns).AddRow(
			"abc123", "https://example.com", nil, now, now, nil,
			nil, int64(0), nil, true, nil, nil,
		)
		mock.ExpectQuery("SELECT .* FROM links").WillReturnRows(rows)

		link, err := repo.Get(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Nil(t, link.Routing)
		assert.Nil(t, link.OwnerID)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT .* FROM links").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "nope1")
		assert.ErrorIs(t, err, apperrors.ErrLinkNotFound)
	})

	t.Run("store error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT .* FROM links").WillReturnError(errors.New("timeout"))

		_, err := repo.Get(context.Background(), "abc123")
		assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	})
}

func TestPostgresLinkRepository_IncrementClicks(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("UPDATE links\\s+SET click_count = click_count \\+ 1").
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"click_count"}).AddRow(int64(8)))

	count, err := repo.IncrementClicks(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)

	mock.ExpectQuery("UPDATE links").WillReturnError(sql.ErrNoRows)
	_, err = repo.IncrementClicks(context.Background(), "gone1")
	assert.ErrorIs(t, err, apperrors.ErrLinkNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLinkRepository_SetRoutingTier(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("jsonb_set").
		WithArgs("abc123", "geo", `{"US":"https://us.example.com"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.SetRoutingTier(context.Background(), "abc123", model.RoutingGeo, map[string]string{"US": "https://us.example.com"})
	require.NoError(t, err)

	mock.ExpectExec("- \\$2::text").
		WithArgs("abc123", "geo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetRoutingTier(context.Background(), "abc123", model.RoutingGeo, nil))

	mock.ExpectExec("- \\$2::text").WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.SetRoutingTier(context.Background(), "missing", model.RoutingDevice, map[string]string(nil))
	assert.ErrorIs(t, err, apperrors.ErrLinkNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLinkRepository_UpdateDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	link := &model.Link{Slug: "abc123", Destination: "https://new.example.com", Active: false, UpdatedAt: now}

	mock.ExpectExec("UPDATE links\\s+SET destination").
		WithArgs("abc123", "https://new.example.com", false, nil, nil, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), link))

	mock.ExpectExec("DELETE FROM links").WithArgs("abc123").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "abc123"))

	mock.ExpectExec("DELETE FROM links").WithArgs("abc123").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "abc123"), apperrors.ErrLinkNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
