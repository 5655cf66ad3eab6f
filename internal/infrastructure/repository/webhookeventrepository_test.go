package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionly/internal/domain/billing"
	"captionly/internal/shared/logger"
)

func TestWebhookEventRepository_InsertIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWebhookEventRepository(db, logger.NewNop())
	ctx := context.Background()

	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	t.Run("first delivery is inserted", func(t *testing.T) {
		event, err := billing.NewWebhookEvent("evt_1", "invoice.payment_succeeded", payload, time.Now().UTC())
		require.NoError(t, err)

		inserted, err := repo.InsertIfAbsent(ctx, event)
		assert.NoError(t, err)
		assert.True(t, inserted)
		assert.NotZero(t, event.ID())
	})

	t.Run("redelivery with the same event id is rejected", func(t *testing.T) {
		event, err := billing.NewWebhookEvent("evt_1", "invoice.payment_succeeded", payload, time.Now().UTC())
		require.NoError(t, err)

		inserted, err := repo.InsertIfAbsent(ctx, event)
		assert.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("different event id is inserted", func(t *testing.T) {
		event, err := billing.NewWebhookEvent("evt_2", "customer.subscription.deleted", payload, time.Now().UTC())
		require.NoError(t, err)

		inserted, err := repo.InsertIfAbsent(ctx, event)
		assert.NoError(t, err)
		assert.True(t, inserted)
	})
}

func TestWebhookEventRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWebhookEventRepository(db, logger.NewNop())
	ctx := context.Background()

	event, err := billing.NewWebhookEvent("evt_upd", "checkout.session.completed", []byte(`{}`), time.Now().UTC())
	require.NoError(t, err)
	inserted, err := repo.InsertIfAbsent(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)

	event.MarkProcessed()
	assert.NoError(t, repo.Update(ctx, event))

	failed, err := billing.NewWebhookEvent("evt_fail", "customer.subscription.updated", []byte(`{}`), time.Now().UTC())
	require.NoError(t, err)
	inserted, err = repo.InsertIfAbsent(ctx, failed)
	require.NoError(t, err)
	require.True(t, inserted)

	failed.MarkFailed("entitlement not found")
	assert.NoError(t, repo.Update(ctx, failed))
}

func TestWebhookEventRepository_GetByProviderEventID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWebhookEventRepository(db, logger.NewNop())
	ctx := context.Background()

	event, err := billing.NewWebhookEvent("evt_get", "checkout.session.completed", []byte(`{"id":"evt_get"}`), time.Now().UTC())
	require.NoError(t, err)
	inserted, err := repo.InsertIfAbsent(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)

	t.Run("stored event round-trips with its outcome", func(t *testing.T) {
		stored, err := repo.GetByProviderEventID(ctx, "evt_get")
		require.NoError(t, err)
		assert.Equal(t, event.ID(), stored.ID())
		assert.Nil(t, stored.ProcessedAt())

		event.MarkFailed("handler unavailable")
		require.NoError(t, repo.Update(ctx, event))

		stored, err = repo.GetByProviderEventID(ctx, "evt_get")
		require.NoError(t, err)
		assert.Nil(t, stored.ProcessedAt())
		assert.Equal(t, "handler unavailable", stored.ProcessingError())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetByProviderEventID(ctx, "evt_missing")
		assert.ErrorIs(t, err, billing.ErrEventNotFound)
	})
}
