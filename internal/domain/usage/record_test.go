package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	period := Period{Year: 2026, Month: time.September}

	record, err := NewRecord(1, period, 100)
	require.NoError(t, err)

	assert.Equal(t, uint(1), record.UserID())
	assert.Equal(t, period, record.Period())
	assert.Equal(t, int64(0), record.GeneratedCount())
	assert.Equal(t, int64(100), record.LimitSnapshot())
	assert.Equal(t, int64(100), record.Remaining())
}

func TestNewRecord_Validation(t *testing.T) {
	period := Period{Year: 2026, Month: time.September}

	_, err := NewRecord(0, period, 100)
	assert.Error(t, err)

	_, err = NewRecord(1, Period{}, 100)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = NewRecord(1, period, -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestRemaining_NeverNegative(t *testing.T) {
	// A mid-period downgrade can leave the count above the new limit.
	record, err := ReconstructRecord(1, 1, Period{Year: 2026, Month: time.September}, 40, 5, time.Now(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(0), record.Remaining())
}

func TestPeriodKey(t *testing.T) {
	assert.Equal(t, "2026-09", Period{Year: 2026, Month: time.September}.Key())
	assert.Equal(t, "2027-01", Period{Year: 2026, Month: time.December}.Next().Key())
	assert.Equal(t, "2026-10", Period{Year: 2026, Month: time.September}.Next().Key())
}

func TestCurrentPeriod(t *testing.T) {
	now := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, Period{Year: 2026, Month: time.September}, CurrentPeriod(now))

	// Local timezones never bleed into period boundaries.
	loc := time.FixedZone("UTC+14", 14*3600)
	localOct := time.Date(2026, 10, 1, 10, 0, 0, 0, loc)
	assert.Equal(t, Period{Year: 2026, Month: time.September}, CurrentPeriod(localOct))
}
