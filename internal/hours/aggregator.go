package hours

import (
	"context"
	"time"

	"attendance-backend/config"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/model"
)

// SessionReader is the part of the session store the aggregator needs.
type SessionReader interface {
	QueryByUserAndRange(ctx context.Context, userID string, start, end int64) ([]model.Session, error)
}

// Summary holds one user's totals. Daily, Weekly and Monthly include the open session's
// elapsed time up to now. Range, when requested, counts closed sessions only.
type Summary struct {
	Daily   Total  `json:"daily"`
	Weekly  Total  `json:"weekly"`
	Monthly Total  `json:"monthly"`
	Range   *Total `json:"range,omitempty"`
}

// Aggregator computes worked-time totals for single users.
type Aggregator struct {
	sessions SessionReader
	cfg      *config.AttendanceConfig
	clock    clock.Clock
}

// NewAggregator creates an aggregator that buckets by cfg.Location.
func NewAggregator(sessions SessionReader, cfg *config.AttendanceConfig, clk clock.Clock) *Aggregator {
	return &Aggregator{sessions: sessions, cfg: cfg, clock: clk}
}

// Location is the organisational timezone used for every bucket boundary.
func (a *Aggregator) Location() *time.Location {
	return a.cfg.Location
}

// Now returns the aggregator's clock reading.
func (a *Aggregator) Now() time.Time {
	return a.clock.Now()
}

// UserSummary returns the live daily, weekly and monthly totals for userID. When rng is
// non-nil the closed-session total over rng is included.
func (a *Aggregator) UserSummary(ctx context.Context, userID string, rng *Window) (Summary, error) {
	now := a.clock.Now()
	day := DayWindow(now, a.cfg.Location)
	week := WeekWindow(now, a.cfg.Location)
	month := MonthWindow(now, a.cfg.Location)
	span := week.Union(month)

	sessions, err := a.sessions.QueryByUserAndRange(ctx, userID, span.Start, span.End)
	if err != nil {
		return Summary{}, err
	}
	ts := now.Unix()
	summary := Summary{
		Daily:   NewTotal(WorkedSeconds(sessions, day, true, ts)),
		Weekly:  NewTotal(WorkedSeconds(sessions, week, true, ts)),
		Monthly: NewTotal(WorkedSeconds(sessions, month, true, ts)),
	}

	if rng != nil {
		total, err := a.RangeTotal(ctx, userID, *rng)
		if err != nil {
			return Summary{}, err
		}
		summary.Range = &total
	}
	return summary, nil
}

// RangeTotal sums the user's closed work sessions clipped to w.
func (a *Aggregator) RangeTotal(ctx context.Context, userID string, w Window) (Total, error) {
	sessions, err := a.sessions.QueryByUserAndRange(ctx, userID, w.Start, w.End)
	if err != nil {
		return Total{}, err
	}
	return NewTotal(WorkedSeconds(sessions, w, false, a.clock.Now().Unix())), nil
}

// WorkDays returns the expected number of working days for a timeframe, or the weekday
// count of rng when one is given.
func (a *Aggregator) WorkDays(tf Timeframe, rng *Window) int {
	if rng != nil {
		return CountWeekdays(*rng, a.cfg.Location)
	}
	switch tf {
	case Week:
		return a.cfg.WorkDays.Week
	case Month:
		return a.cfg.WorkDays.Month
	default:
		return a.cfg.WorkDays.Today
	}
}

// Percentage converts worked seconds into a share of workDays full days.
func (a *Aggregator) Percentage(workedSeconds int64, workDays int) float64 {
	return Percentage(workedSeconds, workDays, a.cfg.HoursPerDay)
}
