package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgelink/shortener/internal/errors"
	"github.com/edgelink/shortener/internal/model"
)

func TestMemoryLinkRepository_ReserveIsExclusive(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.TryReserve(ctx, &model.Link{Slug: "race1", Destination: "https://example.com", Active: true})
			assert.NoError(t, err)
			if ok {
				wins <- "win"
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

func TestMemoryLinkRepository_IncrementConcurrent(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	_, err := repo.TryReserve(ctx, &model.Link{Slug: "abc123", Active: true})
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementClicks(ctx, "abc123")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	link, err := repo.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(n), link.ClickCount)
}

func TestMemoryLinkRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	_, err := repo.TryReserve(ctx, &model.Link{
		Slug:    "abc123",
		Routing: &model.RoutingConfig{Geo: map[string]string{"US": "https://us.example.com"}},
	})
	require.NoError(t, err)

	got, _ := repo.Get(ctx, "abc123")
	got.Routing.Geo["US"] = "https://mutated.example.com"
	got.Destination = "https://mutated.example.com"

	again, _ := repo.Get(ctx, "abc123")
	assert.Equal(t, "https://us.example.com", again.Routing.Geo["US"])
	assert.Empty(t, again.Destination)
}

func TestMemoryLinkRepository_RoutingTiers(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	_, err := repo.TryReserve(ctx, &model.Link{Slug: "abc123"})
	require.NoError(t, err)

	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingDevice, map[string]string{"mobile": "https://m.example.com"}))
	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingTime, []model.TimeRule{{StartHour: 9, EndHour: 17, Destination: "https://o.example.com"}}))
	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingABTest, &model.ABTest{ID: "t1"}))

	link, _ := repo.Get(ctx, "abc123")
	require.NotNil(t, link.Routing)
	assert.Equal(t, "https://m.example.com", link.Routing.Device["mobile"])
	assert.Len(t, link.Routing.Time, 1)
	assert.Equal(t, "t1", link.Routing.ABTest.ID)

	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingDevice, nil))
	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingTime, nil))
	require.NoError(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingABTest, (*model.ABTest)(nil)))

	link, _ = repo.Get(ctx, "abc123")
	assert.Nil(t, link.Routing, "removing every tier leaves no routing config")

	assert.Error(t, repo.SetRoutingTier(ctx, "abc123", model.RoutingGeo, "not a map"))
	assert.ErrorIs(t, repo.SetRoutingTier(ctx, "zzzzz", model.RoutingGeo, nil), apperrors.ErrLinkNotFound)
}

func TestMemoryLinkRepository_UpdateKeepsClicks(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()
	_, _ = repo.TryReserve(ctx, &model.Link{Slug: "abc123", Destination: "https://old.example.com", Active: true})
	_, _ = repo.IncrementClicks(ctx, "abc123")

	err := repo.Update(ctx, &model.Link{Slug: "abc123", Destination: "https://new.example.com", Active: false, ClickCount: 99})
	require.NoError(t, err)

	link, _ := repo.Get(ctx, "abc123")
	assert.Equal(t, "https://new.example.com", link.Destination)
	assert.False(t, link.Active)
	assert.Equal(t, int64(1), link.ClickCount)

	require.NoError(t, repo.Delete(ctx, "abc123"))
	_, err = repo.Get(ctx, "abc123")
	assert.ErrorIs(t, err, apperrors.ErrLinkNotFound)
}

func TestMemoryWebhookRepository(t *testing.T) {
	repo := NewMemoryWebhookRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, &model.Webhook{ID: "w2", OwnerID: "o1", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &model.Webhook{ID: "w1", OwnerID: "o1", CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, &model.Webhook{ID: "w3", OwnerID: "o2", CreatedAt: now}))

	hooks, err := repo.ListByOwner(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "w1", hooks[0].ID)

	assert.ErrorIs(t, repo.Delete(ctx, "o2", "w1"), apperrors.ErrWebhookNotFound)
	require.NoError(t, repo.Delete(ctx, "o1", "w1"))
	hooks, _ = repo.ListByOwner(ctx, "o1")
	assert.Len(t, hooks, 1)
}
