// Package report builds ranked activity summaries across users.
package report

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"attendance-backend/internal/hours"
	"attendance-backend/internal/model"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/store"
)

// Store is the persistence the reporter reads.
type Store interface {
	store.SessionStore
	store.UserDirectory
}

// Query selects the users and period of an activity report. Non-admin viewers only ever
// see their own row.
type Query struct {
	ViewerID  string
	Admin     bool
	Timeframe hours.Timeframe
	Range     *hours.Window
	Search    string
	parse.Pagination
}

// Entry is one user's worked time over the report window.
type Entry struct {
	UserID              string `json:"userId"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	TotalSeconds        int64  `json:"totalSeconds"`
	TotalTime           string `json:"totalTime"`
	TotalWorkPercentage string `json:"totalWorkPercentage"`
}

// Activity is one page of the ranked report.
type Activity struct {
	Results      []Entry         `json:"results"`
	TotalPages   int             `json:"totalPages"`
	CurrentPage  int             `json:"currentPage"`
	TotalRecords int64           `json:"totalRecords"`
	Timeframe    hours.Timeframe `json:"timeframe,omitempty"`
	Window       hours.Window    `json:"window"`
	WorkDays     int             `json:"workDays"`
}

// Reporter composes per-user totals into reports.
type Reporter struct {
	store   Store
	agg     *hours.Aggregator
	workers int
}

// NewReporter creates a reporter that computes at most workers user totals in parallel.
func NewReporter(st Store, agg *hours.Aggregator, workers int) *Reporter {
	return &Reporter{store: st, agg: agg, workers: max(workers, 1)}
}

// Activity ranks users by closed worked time in the window, highest first, ties by user id.
func (r *Reporter) Activity(ctx context.Context, q Query) (*Activity, error) {
	p := q.Pagination.Normalize()
	tf := q.Timeframe
	if tf == "" {
		tf = hours.Today
	}
	window := hours.TimeframeWindow(tf, r.agg.Now(), r.agg.Location())
	if q.Range != nil {
		window = *q.Range
		tf = ""
	}
	workDays := r.agg.WorkDays(tf, q.Range)

	ids, err := r.candidates(ctx, q, window)
	if err != nil {
		return nil, err
	}
	users, err := r.store.ListUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		u, known := users[id]
		if q.Admin && known && !isEmployee(u) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.FirstName), search) {
			continue
		}
		entries = append(entries, Entry{UserID: id, FirstName: u.FirstName, LastName: u.LastName})
	}

	if err := r.fillTotals(ctx, entries, window, workDays); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})

	total := int64(len(entries))
	from := max(0, min(p.Offset(), len(entries)))
	to := min(from+p.Limit, len(entries))
	return &Activity{
		Results:      entries[from:to],
		TotalPages:   p.TotalPages(total),
		CurrentPage:  p.Page,
		TotalRecords: total,
		Timeframe:    tf,
		Window:       window,
		WorkDays:     workDays,
	}, nil
}

// candidates lists every active employee plus anyone with sessions in the window.
func (r *Reporter) candidates(ctx context.Context, q Query, window hours.Window) ([]string, error) {
	if !q.Admin {
		return []string{q.ViewerID}, nil
	}
	all, err := r.store.ActiveEmployeeIDs(ctx)
	if err != nil {
		return nil, err
	}
	active, err := r.store.DistinctUsersInRange(ctx, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(all)+len(active))
	ids := make([]string, 0, len(all)+len(active))
	for _, id := range append(all, active...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// isEmployee reports whether u belongs in the admin report. Session holders missing from
// the directory are kept.
func isEmployee(u model.User) bool {
	return u.Role == model.RoleUser && u.Status == model.StatusActive
}

func (r *Reporter) fillTotals(ctx context.Context, entries []Entry, window hours.Window, workDays int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range entries {
		g.Go(func() error {
			total, err := r.agg.RangeTotal(ctx, entries[i].UserID, window)
			if err != nil {
				return err
			}
			entries[i].TotalSeconds = total.Seconds
			entries[i].TotalTime = total.Time
			entries[i].TotalWorkPercentage = hours.FormatPercent(r.agg.Percentage(total.Seconds, workDays))
			return nil
		})
	}
	return g.Wait()
}

// Counts is the number of distinct users and projects with sessions in a period.
type Counts struct {
	Users    int `json:"activeUsers"`
	Projects int `json:"activeProjects"`
}

// ActiveCounts covers today, this week and this month.
type ActiveCounts struct {
	Today Counts `json:"today"`
	Week  Counts `json:"week"`
	Month Counts `json:"month"`
}

// ActiveCounts counts active users and projects. Non-admin viewers get counts over their
// own sessions only.
func (r *Reporter) ActiveCounts(ctx context.Context, viewerID string, admin bool) (*ActiveCounts, error) {
	now := r.agg.Now()
	loc := r.agg.Location()
	windows := []hours.Window{
		hours.DayWindow(now, loc),
		hours.WeekWindow(now, loc),
		hours.MonthWindow(now, loc),
	}
	counts := make([]Counts, len(windows))

	g, ctx := errgroup.WithContext(ctx)
	for i, w := range windows {
		g.Go(func() error {
			c, err := r.countsIn(ctx, w, viewerID, admin)
			if err != nil {
				return err
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ActiveCounts{Today: counts[0], Week: counts[1], Month: counts[2]}, nil
}

func (r *Reporter) countsIn(ctx context.Context, w hours.Window, viewerID string, admin bool) (Counts, error) {
	if !admin {
		sessions, err := r.store.QueryByUserAndRange(ctx, viewerID, w.Start, w.End)
		if err != nil {
			return Counts{}, err
		}
		return ownCounts(sessions), nil
	}
	users, err := r.store.DistinctUsersInRange(ctx, w.Start, w.End)
	if err != nil {
		return Counts{}, err
	}
	projects, err := r.store.DistinctProjectsInRange(ctx, w.Start, w.End)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Users: len(users), Projects: len(projects)}, nil
}

func ownCounts(sessions []model.Session) Counts {
	if len(sessions) == 0 {
		return Counts{}
	}
	projects := make(map[string]struct{})
	for _, s := range sessions {
		if s.ProjectID != "" {
			projects[s.ProjectID] = struct{}{}
		}
	}
	return Counts{Users: 1, Projects: len(projects)}
}
