// Package parse turns raw transport input into validated core values.
package parse

import (
	"strconv"
	"strings"
	"time"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/hours"
	"attendance-backend/internal/model"
)

const dateLayout = "2006-01-02"

// Date accepts a calendar date (2006-01-02) interpreted in loc, or an RFC 3339 timestamp.
func Date(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, apperr.Validation("date is required")
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, apperr.Validation("invalid date %q: expected YYYY-MM-DD", raw)
}

// EpochRange parses a [start, end) pair of epoch seconds. Both empty means no range.
func EpochRange(startRaw, endRaw string) (*hours.Window, error) {
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)
	if startRaw == "" && endRaw == "" {
		return nil, nil
	}
	if startRaw == "" || endRaw == "" {
		return nil, apperr.Validation("both start and end are required for a range")
	}
	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid start %q: expected epoch seconds", startRaw)
	}
	end, err := strconv.ParseInt(endRaw, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid end %q: expected epoch seconds", endRaw)
	}
	w, err := hours.NewWindow(start, end)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// DateRange parses an inclusive pair of calendar dates. Both empty means no range.
func DateRange(fromRaw, toRaw string, loc *time.Location) (*hours.Window, error) {
	if strings.TrimSpace(fromRaw) == "" && strings.TrimSpace(toRaw) == "" {
		return nil, nil
	}
	from, err := Date(fromRaw, loc)
	if err != nil {
		return nil, err
	}
	to, err := Date(toRaw, loc)
	if err != nil {
		return nil, err
	}
	w, err := hours.DateRangeWindow(from, to, loc)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Timeframe parses a reporting timeframe, defaulting to today.
func Timeframe(raw string) (hours.Timeframe, error) {
	if strings.TrimSpace(raw) == "" {
		return hours.Today, nil
	}
	return hours.ParseTimeframe(raw)
}

// LeaveStatus parses a leave status filter case-insensitively. Empty means any status.
func LeaveStatus(raw string) (model.LeaveStatus, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	for _, st := range []model.LeaveStatus{model.LeavePending, model.LeaveApproved, model.LeaveRejected} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", apperr.Validation("invalid status %q: expected Pending, Approved or Rejected", raw)
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page  int
	Limit int
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (MaxPage-1)*MaxLimit far inside int range.
	MaxPage = 1_000_000
)

// ParsePagination reads page and limit, applying defaults for empty values.
func ParsePagination(pageRaw, limitRaw string) (Pagination, error) {
	p := Pagination{Page: 1, Limit: DefaultLimit}
	if s := strings.TrimSpace(pageRaw); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, apperr.Validation("invalid page %q", pageRaw)
		}
		if n > MaxPage {
			return p, apperr.Validation("page %d is beyond the last allowed page %d", n, MaxPage)
		}
		p.Page = n
	}
	if s := strings.TrimSpace(limitRaw); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, apperr.Validation("invalid limit %q", limitRaw)
		}
		p.Limit = min(n, MaxLimit)
	}
	return p, nil
}

// Normalize fills zero values with defaults and clamps out-of-range ones.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset is the number of records before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages is the page count needed for total records.
func (p Pagination) TotalPages(total int64) int {
	if p.Limit < 1 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}
