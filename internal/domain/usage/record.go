package usage

import (
	"errors"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("period cannot be zero")
	ErrInvalidLimit  = errors.New("limit snapshot cannot be negative")
)

// Record is one usage ledger row: the durable per-(user, period) counter of
// caption generations, bounded by the limit snapshot taken from the tier at
// last write. generatedCount only ever grows within a period.
type Record struct {
	id             uint
	userID         uint
	period         Period
	generatedCount int64
	limitSnapshot  int64
	createdAt      time.Time
	updatedAt      time.Time
}

// NewRecord creates a fresh ledger record at zero for the given period.
func NewRecord(userID uint, period Period, limitSnapshot int64) (*Record, error) {
	if userID == 0 {
		return nil, errors.New("user ID cannot be zero")
	}
	if period.IsZero() {
		return nil, ErrInvalidPeriod
	}
	if limitSnapshot < 0 {
		return nil, ErrInvalidLimit
	}

	now := time.Now().UTC()
	return &Record{
		userID:         userID,
		period:         period,
		generatedCount: 0,
		limitSnapshot:  limitSnapshot,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// ReconstructRecord rebuilds a ledger record from persistence.
func ReconstructRecord(
	id, userID uint,
	period Period,
	generatedCount, limitSnapshot int64,
	createdAt, updatedAt time.Time,
) (*Record, error) {
	if id == 0 {
		return nil, errors.New("record ID cannot be zero")
	}
	if userID == 0 {
		return nil, errors.New("user ID cannot be zero")
	}
	if period.IsZero() {
		return nil, ErrInvalidPeriod
	}

	return &Record{
		id:             id,
		userID:         userID,
		period:         period,
		generatedCount: generatedCount,
		limitSnapshot:  limitSnapshot,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}, nil
}

func (r *Record) ID() uint              { return r.id }
func (r *Record) UserID() uint          { return r.userID }
func (r *Record) Period() Period        { return r.period }
func (r *Record) GeneratedCount() int64 { return r.generatedCount }
func (r *Record) LimitSnapshot() int64  { return r.limitSnapshot }
func (r *Record) CreatedAt() time.Time  { return r.createdAt }
func (r *Record) UpdatedAt() time.Time  { return r.updatedAt }

// Remaining returns the allowance left this period. Never negative: a
// downgrade mid-period may leave the count above the new limit.
func (r *Record) Remaining() int64 {
	remaining := r.limitSnapshot - r.generatedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Record) SetID(id uint) error {
	if id == 0 {
		return errors.New("record ID cannot be zero")
	}
	r.id = id
	return nil
}

// ConsumeResult is the outcome of a TryConsume call.
type ConsumeResult struct {
	Allowed   bool
	Current   int64
	Limit     int64
	Remaining int64
}
