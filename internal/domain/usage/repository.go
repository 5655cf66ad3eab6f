package usage

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by Get when no ledger row exists.
var ErrRecordNotFound = errors.New("usage record not found")

// LedgerRepository persists usage ledger records. TryConsume must be an
// atomic conditional increment; a read-then-write sequence is a race under
// concurrent requests and is not an acceptable implementation.
type LedgerRepository interface {
	// GetOrCreate returns the record for (userID, period), creating it at
	// zero with the given limit snapshot when absent.
	GetOrCreate(ctx context.Context, userID uint, period Period, limitSnapshot int64) (*Record, error)

	// Get returns the record for (userID, period), or ErrRecordNotFound.
	Get(ctx context.Context, userID uint, period Period) (*Record, error)

	// TryConsume atomically increments generatedCount by amount when the
	// result stays within the limit snapshot. The returned result reports
	// the counter state either way.
	TryConsume(ctx context.Context, userID uint, period Period, amount int64) (*ConsumeResult, error)

	// ResyncLimit updates the limit snapshot to the new tier's limit without
	// touching generatedCount. Used on upgrade, downgrade and expiry.
	ResyncLimit(ctx context.Context, userID uint, period Period, newLimit int64) error
}
