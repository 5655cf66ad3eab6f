package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionly/internal/domain/entitlement"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

func createTestEntitlement(t *testing.T, userID uint) *entitlement.Entitlement {
	ent, err := entitlement.NewEntitlement(userID)
	require.NoError(t, err)
	return ent
}

func TestEntitlementRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntitlementRepository(db, logger.NewNop())
	ctx := context.Background()

	t.Run("create and get by user ID", func(t *testing.T) {
		ent := createTestEntitlement(t, 1)

		err := repo.Create(ctx, ent)
		assert.NoError(t, err)
		assert.NotZero(t, ent.ID())

		found, err := repo.GetByUserID(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, entitlement.TierFree, found.Tier())
		assert.Nil(t, found.SubscriptionEnd())
		assert.False(t, found.TrialActivated())
	})

	t.Run("get non-existent user", func(t *testing.T) {
		found, err := repo.GetByUserID(ctx, 99999)
		assert.ErrorIs(t, err, entitlement.ErrNotFound)
		assert.Nil(t, found)
	})

	t.Run("duplicate user is a conflict", func(t *testing.T) {
		ent := createTestEntitlement(t, 1)
		err := repo.Create(ctx, ent)
		assert.Error(t, err)
		assert.True(t, apperrors.IsConflictError(err))
	})
}

func TestEntitlementRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntitlementRepository(db, logger.NewNop())
	ctx := context.Background()

	t.Run("save persists a transition", func(t *testing.T) {
		ent := createTestEntitlement(t, 2)
		require.NoError(t, repo.Create(ctx, ent))

		eventAt := time.Now().UTC()
		trialEnd := eventAt.AddDate(0, 0, 3)
		require.NoError(t, ent.StartTrial("cus_1", "sub_1", trialEnd, eventAt))

		err := repo.Save(ctx, ent)
		assert.NoError(t, err)

		found, err := repo.GetByUserID(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, entitlement.TierTrial, found.Tier())
		assert.True(t, found.TrialActivated())
		assert.Equal(t, "sub_1", found.ExternalSubscriptionID())
		require.NotNil(t, found.SubscriptionEnd())
		assert.WithinDuration(t, trialEnd, *found.SubscriptionEnd(), time.Second)
	})

	t.Run("concurrent save loses with a conflict", func(t *testing.T) {
		ent := createTestEntitlement(t, 3)
		require.NoError(t, repo.Create(ctx, ent))

		first, err := repo.GetByUserID(ctx, 3)
		require.NoError(t, err)
		second, err := repo.GetByUserID(ctx, 3)
		require.NoError(t, err)

		eventAt := time.Now().UTC()
		require.NoError(t, first.StartTrial("cus_a", "sub_a", eventAt.AddDate(0, 0, 3), eventAt))
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, second.StartTrial("cus_b", "sub_b", eventAt.AddDate(0, 0, 3), eventAt.Add(time.Second)))
		err = repo.Save(ctx, second)
		assert.Error(t, err)
		assert.True(t, apperrors.IsConflictError(err))

		found, err := repo.GetByUserID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "sub_a", found.ExternalSubscriptionID())
	})
}

func TestEntitlementRepository_GetByExternalSubscriptionID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntitlementRepository(db, logger.NewNop())
	ctx := context.Background()

	ent := createTestEntitlement(t, 4)
	require.NoError(t, repo.Create(ctx, ent))

	eventAt := time.Now().UTC()
	require.NoError(t, ent.ActivatePremium("cus_4", "sub_ext_4", eventAt.AddDate(0, 1, 0), eventAt))
	require.NoError(t, repo.Save(ctx, ent))

	found, err := repo.GetByExternalSubscriptionID(ctx, "sub_ext_4")
	assert.NoError(t, err)
	assert.Equal(t, uint(4), found.UserID())

	_, err = repo.GetByExternalSubscriptionID(ctx, "sub_unknown")
	assert.ErrorIs(t, err, entitlement.ErrNotFound)
}

func TestEntitlementRepository_DowngradeExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEntitlementRepository(db, logger.NewNop())
	ctx := context.Background()

	t.Run("expired premium collapses to free", func(t *testing.T) {
		ent := createTestEntitlement(t, 5)
		require.NoError(t, repo.Create(ctx, ent))

		eventAt := time.Now().UTC().Add(-48 * time.Hour)
		require.NoError(t, ent.ActivatePremium("cus_5", "sub_5", eventAt.Add(24*time.Hour), eventAt))
		require.NoError(t, repo.Save(ctx, ent))

		downgraded, err := repo.DowngradeExpired(ctx, 5, time.Now().UTC())
		assert.NoError(t, err)
		assert.True(t, downgraded)

		found, err := repo.GetByUserID(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, entitlement.TierFree, found.Tier())
		assert.Nil(t, found.SubscriptionEnd())
		assert.Empty(t, found.ExternalSubscriptionID())
		// trial flag and last event time survive the downgrade
		assert.NotNil(t, found.LastEventAt())
	})

	t.Run("active premium is left alone", func(t *testing.T) {
		ent := createTestEntitlement(t, 6)
		require.NoError(t, repo.Create(ctx, ent))

		eventAt := time.Now().UTC()
		require.NoError(t, ent.ActivatePremium("cus_6", "sub_6", eventAt.AddDate(0, 1, 0), eventAt))
		require.NoError(t, repo.Save(ctx, ent))

		downgraded, err := repo.DowngradeExpired(ctx, 6, time.Now().UTC())
		assert.NoError(t, err)
		assert.False(t, downgraded)

		found, err := repo.GetByUserID(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, entitlement.TierPremium, found.Tier())
	})

	t.Run("free row is a no-op", func(t *testing.T) {
		ent := createTestEntitlement(t, 7)
		require.NoError(t, repo.Create(ctx, ent))

		downgraded, err := repo.DowngradeExpired(ctx, 7, time.Now().UTC())
		assert.NoError(t, err)
		assert.False(t, downgraded)
	})

	t.Run("downgrade is idempotent", func(t *testing.T) {
		ent := createTestEntitlement(t, 8)
		require.NoError(t, repo.Create(ctx, ent))

		eventAt := time.Now().UTC().Add(-72 * time.Hour)
		require.NoError(t, ent.StartTrial("cus_8", "sub_8", eventAt.Add(24*time.Hour), eventAt))
		require.NoError(t, repo.Save(ctx, ent))

		downgraded, err := repo.DowngradeExpired(ctx, 8, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, downgraded)

		downgraded, err = repo.DowngradeExpired(ctx, 8, time.Now().UTC())
		assert.NoError(t, err)
		assert.False(t, downgraded)
	})
}
