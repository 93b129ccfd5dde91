package hours

import (
	"fmt"

	"attendance-backend/internal/model"
)

// WorkedSeconds sums the part of every work session that falls inside w.
// Closed sessions contribute min(end, w.End) - max(start, w.Start). An open session
// contributes up to now only when live is set.
func WorkedSeconds(sessions []model.Session, w Window, live bool, now int64) int64 {
	var total int64
	for _, s := range sessions {
		if s.Kind != model.KindWork {
			continue
		}
		end := now
		if s.EndTime != nil {
			end = *s.EndTime
		} else if !live {
			continue
		}
		from := max(s.StartTime, w.Start)
		to := min(end, w.End)
		if to > from {
			total += to - from
		}
	}
	return total
}

// FormatHMS renders seconds as HH:MM:SS. Hours are not capped at 24.
func FormatHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

// Percentage is worked time relative to workDays full days of hoursPerDay, clamped to [0, 100].
func Percentage(workedSeconds int64, workDays, hoursPerDay int) float64 {
	expected := float64(workDays) * float64(hoursPerDay) * 3600
	if expected <= 0 {
		return 0
	}
	p := float64(workedSeconds) / expected * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// FormatPercent renders a percentage with two decimals, e.g. "37.50%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// Total is a worked duration in seconds and as HH:MM:SS.
type Total struct {
	Seconds int64  `json:"seconds"`
	Time    string `json:"time"`
}

// NewTotal wraps seconds with its formatted form.
func NewTotal(seconds int64) Total {
	return Total{Seconds: seconds, Time: FormatHMS(seconds)}
}
