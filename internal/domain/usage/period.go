package usage

import (
	"fmt"
	"time"
)

// Period identifies one calendar month of usage. Exactly one ledger record
// exists per (user, period).
type Period struct {
	Year  int
	Month time.Month
}

// CurrentPeriod returns the period containing now (UTC).
func CurrentPeriod(now time.Time) Period {
	utc := now.UTC()
	return Period{Year: utc.Year(), Month: utc.Month()}
}

// Next returns the following period.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Key returns the canonical storage key, e.g. "2026-09".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// ParsePeriodKey parses a canonical "YYYY-MM" key back into a Period.
func ParsePeriodKey(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period key %q: %w", key, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}
