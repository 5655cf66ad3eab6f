package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captionly/internal/domain/usage"
	"captionly/internal/shared/logger"
)

func TestUsageLedgerRepository_GetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUsageLedgerRepository(db, logger.NewNop())
	ctx := context.Background()
	period := usage.CurrentPeriod(time.Now())

	t.Run("creates zero record when absent", func(t *testing.T) {
		record, err := repo.GetOrCreate(ctx, 1, period, 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), record.GeneratedCount())
		assert.Equal(t, int64(5), record.LimitSnapshot())
		assert.Equal(t, int64(5), record.Remaining())
	})

	t.Run("returns existing record on second call", func(t *testing.T) {
		first, err := repo.GetOrCreate(ctx, 2, period, 5)
		require.NoError(t, err)

		second, err := repo.GetOrCreate(ctx, 2, period, 100)
		assert.NoError(t, err)
		assert.Equal(t, first.ID(), second.ID())
		// the original snapshot wins; upgrades resync explicitly
		assert.Equal(t, int64(5), second.LimitSnapshot())
	})

	t.Run("periods are isolated", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 3, period, 5)
		require.NoError(t, err)

		next, err := repo.GetOrCreate(ctx, 3, period.Next(), 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), next.GeneratedCount())
	})
}

func TestUsageLedgerRepository_TryConsume(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUsageLedgerRepository(db, logger.NewNop())
	ctx := context.Background()
	period := usage.CurrentPeriod(time.Now())

	t.Run("consume within limit", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 10, period, 5)
		require.NoError(t, err)

		result, err := repo.TryConsume(ctx, 10, period, 1)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(1), result.Current)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("consume up to the boundary then deny", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 11, period, 5)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			result, err := repo.TryConsume(ctx, 11, period, 1)
			require.NoError(t, err)
			require.True(t, result.Allowed, "consume %d should succeed", i+1)
		}

		result, err := repo.TryConsume(ctx, 11, period, 1)
		assert.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(5), result.Current)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("oversized amount is denied without partial consumption", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 12, period, 5)
		require.NoError(t, err)

		result, err := repo.TryConsume(ctx, 12, period, 6)
		assert.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Current)
	})

	t.Run("missing record is an error", func(t *testing.T) {
		_, err := repo.TryConsume(ctx, 99999, period, 1)
		assert.ErrorIs(t, err, usage.ErrRecordNotFound)
	})

	t.Run("concurrent consumers never overshoot the limit", func(t *testing.T) {
		const attempts = 20
		const limit = 5

		_, err := repo.GetOrCreate(ctx, 13, period, limit)
		require.NoError(t, err)

		var wg sync.WaitGroup
		allowed := make(chan bool, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := repo.TryConsume(ctx, 13, period, 1)
				if err == nil && result.Allowed {
					allowed <- true
				}
			}()
		}
		wg.Wait()
		close(allowed)

		assert.Equal(t, limit, len(allowed))

		record, err := repo.Get(ctx, 13, period)
		require.NoError(t, err)
		assert.Equal(t, int64(limit), record.GeneratedCount())
	})
}

func TestUsageLedgerRepository_ResyncLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUsageLedgerRepository(db, logger.NewNop())
	ctx := context.Background()
	period := usage.CurrentPeriod(time.Now())

	t.Run("upgrade raises the snapshot without touching the count", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 20, period, 5)
		require.NoError(t, err)
		result, err := repo.TryConsume(ctx, 20, period, 3)
		require.NoError(t, err)
		require.True(t, result.Allowed)

		err = repo.ResyncLimit(ctx, 20, period, 100)
		assert.NoError(t, err)

		record, err := repo.Get(ctx, 20, period)
		require.NoError(t, err)
		assert.Equal(t, int64(3), record.GeneratedCount())
		assert.Equal(t, int64(100), record.LimitSnapshot())
		assert.Equal(t, int64(97), record.Remaining())
	})

	t.Run("downgrade below the count leaves remaining at zero", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, 21, period, 100)
		require.NoError(t, err)
		result, err := repo.TryConsume(ctx, 21, period, 40)
		require.NoError(t, err)
		require.True(t, result.Allowed)

		err = repo.ResyncLimit(ctx, 21, period, 5)
		assert.NoError(t, err)

		record, err := repo.Get(ctx, 21, period)
		require.NoError(t, err)
		assert.Equal(t, int64(40), record.GeneratedCount())
		assert.Equal(t, int64(5), record.LimitSnapshot())
		assert.Equal(t, int64(0), record.Remaining())

		denied, err := repo.TryConsume(ctx, 21, period, 1)
		require.NoError(t, err)
		assert.False(t, denied.Allowed)
	})

	t.Run("missing record is a no-op", func(t *testing.T) {
		err := repo.ResyncLimit(ctx, 99999, period, 100)
		assert.NoError(t, err)
	})
}
