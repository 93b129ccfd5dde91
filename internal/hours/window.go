// Package hours turns raw session intervals into worked-time totals over calendar windows
// computed in the organisation's fixed timezone.
package hours

import (
	"fmt"
	"strings"
	"time"

	"attendance-backend/internal/apperr"
)

// Timeframe is a named reporting period.
type Timeframe string

const (
	Today Timeframe = "today"
	Week  Timeframe = "week"
	Month Timeframe = "month"
)

// ParseTimeframe accepts today, week or month in any case.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case Today, Week, Month:
		return tf, nil
	}
	return "", apperr.Validation("invalid timeframe %q: expected today, week or month", s)
}

// Window is a half-open interval [Start, End) in epoch seconds.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewWindow validates that start is strictly before end.
func NewWindow(start, end int64) (Window, error) {
	if end <= start {
		return Window{}, apperr.Validation("range end %d must be after start %d", end, start)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Start, w.End)
}

// Union returns the smallest window covering both w and o.
func (w Window) Union(o Window) Window {
	return Window{Start: min(w.Start, o.Start), End: max(w.End, o.End)}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayWindow is the calendar day containing now.
func DayWindow(now time.Time, loc *time.Location) Window {
	start := startOfDay(now, loc)
	return Window{Start: start.Unix(), End: start.AddDate(0, 0, 1).Unix()}
}

// WeekWindow is the ISO week (Monday 00:00 to the next Monday) containing now.
func WeekWindow(now time.Time, loc *time.Location) Window {
	day := startOfDay(now, loc)
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start.Unix(), End: start.AddDate(0, 0, 7).Unix()}
}

// MonthWindow is the calendar month containing now.
func MonthWindow(now time.Time, loc *time.Location) Window {
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Start: start.Unix(), End: start.AddDate(0, 1, 0).Unix()}
}

// TimeframeWindow maps a timeframe to its window around now.
func TimeframeWindow(tf Timeframe, now time.Time, loc *time.Location) Window {
	switch tf {
	case Week:
		return WeekWindow(now, loc)
	case Month:
		return MonthWindow(now, loc)
	default:
		return DayWindow(now, loc)
	}
}

// DateRangeWindow covers the calendar days from through to, both inclusive.
func DateRangeWindow(from, to time.Time, loc *time.Location) (Window, error) {
	start := startOfDay(from, loc)
	end := startOfDay(to, loc).AddDate(0, 0, 1)
	return NewWindow(start.Unix(), end.Unix())
}

// CountWeekdays counts the Monday to Friday calendar days touched by w.
func CountWeekdays(w Window, loc *time.Location) int {
	if w.End <= w.Start {
		return 0
	}
	last := startOfDay(time.Unix(w.End-1, 0), loc)
	n := 0
	for d := startOfDay(time.Unix(w.Start, 0), loc); !d.After(last); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}
