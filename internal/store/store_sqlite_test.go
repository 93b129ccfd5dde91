package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/db"
	"attendance-backend/internal/model"
)

// newSQLiteStore opens a single-connection in-memory database; concurrent callers are
// serialized by database/sql before reaching SQLite.
func newSQLiteStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return openSQLite(t, "file:"+name+"?mode=memory&cache=shared", 1)
}

// newSQLiteFileStore opens a WAL database file with several connections, so concurrent
// callers contend for SQLite's write lock.
func newSQLiteFileStore(t *testing.T, conns int) (Store, *gorm.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.db")
	return openSQLite(t, "file:"+path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", conns)
}

func openSQLite(t *testing.T, dsn string, conns int) (Store, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB), gormDB
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)

	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s-1", UserID: "u-1", Kind: model.KindWork, StartTime: 1000}))

	err := s.CreateSession(ctx, &model.Session{ID: "s-2", UserID: "u-1", Kind: model.KindWork, StartTime: 1100})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "got %v", err)

	open, err := s.FindOpenByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", open.ID)

	_, err = s.CloseSession(ctx, "s-1", 900, false)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	closed, err := s.CloseSession(ctx, "s-1", 4600, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), closed.DurationSeconds())

	_, err = s.CloseSession(ctx, "s-1", 4700, false)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "got %v", err)

	_, err = s.FindOpenByUser(ctx, "u-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s-3", UserID: "u-1", Kind: model.KindWork, StartTime: 5000}))
}

func TestSQLiteStore_ConcurrentCloseSucceedsOnce(t *testing.T) {
	stores := map[string]func(*testing.T) Store{
		"memory": func(t *testing.T) Store { s, _ := newSQLiteStore(t); return s },
		"file":   func(t *testing.T) Store { s, _ := newSQLiteFileStore(t, 8); return s },
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s-1", UserID: "u-1", Kind: model.KindWork, StartTime: 1000}))

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				start     = make(chan struct{})
				successes int
				conflicts int
				others    []error
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, err := s.CloseSession(ctx, "s-1", int64(2000+i), i%2 == 0)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case apperr.Is(err, apperr.KindInvalidState):
						conflicts++
					default:
						others = append(others, err)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			assert.Empty(t, others)
			assert.Equal(t, 1, successes)
			assert.Equal(t, 7, conflicts)

			got, err := s.FindSessionByID(ctx, "s-1")
			require.NoError(t, err)
			require.NotNil(t, got.EndTime)
		})
	}
}

func TestSQLiteStore_QueryByUserAndRange(t *testing.T) {
	ctx := context.Background()
	s, gormDB := newSQLiteStore(t)

	end := func(v int64) *int64 { return &v }
	rows := []model.Session{
		{ID: "before", UserID: "u-1", Kind: model.KindWork, StartTime: 100, EndTime: end(900)},
		{ID: "straddle", UserID: "u-1", Kind: model.KindWork, StartTime: 900, EndTime: end(1500)},
		{ID: "inside", UserID: "u-1", Kind: model.KindMeeting, StartTime: 2000, EndTime: end(2500)},
		{ID: "open", UserID: "u-1", Kind: model.KindWork, StartTime: 2800},
		{ID: "other", UserID: "u-2", Kind: model.KindWork, StartTime: 1200, EndTime: end(1300), ProjectID: "p-1"},
	}
	require.NoError(t, gormDB.Create(&rows).Error)

	got, err := s.QueryByUserAndRange(ctx, "u-1", 1000, 3000)
	require.NoError(t, err)
	var ids []string
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"straddle", "inside", "open"}, ids)

	users, err := s.DistinctUsersInRange(ctx, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2"}, users)

	projects, err := s.DistinctProjectsInRange(ctx, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, projects)

	openSessions, err := s.FindOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, openSessions, 1)
	assert.Equal(t, "open", openSessions[0].ID)
}

func TestSQLiteStore_Heartbeats(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)

	require.NoError(t, s.UpsertHeartbeat(ctx, model.PresenceHeartbeat{SessionID: "s-1", UserID: "u-1", LastSeenAt: 100}))
	require.NoError(t, s.UpsertHeartbeat(ctx, model.PresenceHeartbeat{SessionID: "s-1", UserID: "u-1", LastSeenAt: 250}))

	got, err := s.HeartbeatsForSessions(ctx, []string{"s-1", "s-missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(250), got["s-1"].LastSeenAt)
}

func paidLeave(id, userID string, days int, created time.Time) *model.LeaveRequest {
	return &model.LeaveRequest{
		ID:           id,
		UserID:       userID,
		StartDate:    created,
		EndDate:      created.AddDate(0, 0, days-1),
		NumberOfDays: days,
		LeaveType:    "Paid Leave",
		Status:       model.LeavePending,
		CreatedAt:    created,
	}
}

func TestSQLiteStore_LeaveLedger(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	_, err := s.ApplyLeave(ctx, paidLeave("l-0", "u-1", 1, base), 1)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientBalance), "got %v", err)
	_, err = s.FindLeave(ctx, "l-0")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "a rejected debit must not leave a request behind")

	require.NoError(t, s.GrantLeave(ctx, []string{"u-1", "u-1", "u-2"}, 3))

	left, err := s.ApplyLeave(ctx, paidLeave("l-1", "u-1", 2, base), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = s.ApplyLeave(ctx, paidLeave("l-2", "u-1", 2, base.Add(time.Hour)), 2)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientBalance))

	rejected, err := s.TransitionLeave(ctx, "l-1", model.LeaveRejected, func(req model.LeaveRequest) int {
		return req.NumberOfDays
	})
	require.NoError(t, err)
	assert.Equal(t, model.LeaveRejected, rejected.Status)

	_, err = s.TransitionLeave(ctx, "l-1", model.LeaveApproved, nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	balance, err := s.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance.AvailableDays)
	require.Len(t, balance.History, 1)
	assert.Equal(t, "l-1", balance.History[0].LeaveRequestID)
	assert.Equal(t, model.LeaveRejected, balance.History[0].Status)

	other, err := s.GetBalance(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, 3, other.AvailableDays)

	fresh, err := s.GetBalance(ctx, "u-3")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.AvailableDays)
	assert.Empty(t, fresh.History)

	holders, err := s.BalanceHolders(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-1", "u-2", "u-3"}, holders)

	require.NoError(t, s.GrantLeave(ctx, holders, 3))
	balance, err = s.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 6, balance.AvailableDays)
}

func TestSQLiteStore_ApplyLeaveWithoutDebit(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)

	req := paidLeave("l-1", "u-1", 4, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	req.LeaveType = "Sick Leave"
	left, err := s.ApplyLeave(ctx, req, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	balance, err := s.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, balance.History, 1)
	assert.Equal(t, model.LeavePending, balance.History[0].Status)
}

func TestSQLiteStore_ListLeaves(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	for i, uid := range []string{"u-1", "u-2", "u-1", "u-3"} {
		req := paidLeave("l-"+string(rune('a'+i)), uid, 1, base.Add(time.Duration(i)*time.Hour))
		req.LeaveType = "Sick Leave"
		_, err := s.ApplyLeave(ctx, req, 0)
		require.NoError(t, err)
	}
	_, err := s.TransitionLeave(ctx, "l-a", model.LeaveApproved, nil)
	require.NoError(t, err)

	all, total, err := s.ListLeaves(ctx, LeaveFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, all, 2)
	assert.Equal(t, "l-d", all[0].ID, "newest first")
	assert.Equal(t, "l-c", all[1].ID)

	mine, total, err := s.ListLeaves(ctx, LeaveFilter{UserIDs: []string{"u-1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mine, 2)

	pending, total, err := s.ListLeaves(ctx, LeaveFilter{UserIDs: []string{"u-1"}, Status: model.LeavePending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pending, 1)
	assert.Equal(t, "l-c", pending[0].ID)
}

func TestSQLiteStore_Directory(t *testing.T) {
	ctx := context.Background()
	s, gormDB := newSQLiteStore(t)

	users := []model.User{
		{ID: "u-1", FirstName: "Alice", LastName: "Smith"},
		{ID: "u-2", FirstName: "alistair"},
		{ID: "u-3", FirstName: "Bob"},
		{ID: "u-4", FirstName: "Al%ex"},
		{ID: "u-5", FirstName: "Ada", Role: model.RoleAdmin},
		{ID: "u-6", FirstName: "Gus", Status: "inactive"},
	}
	require.NoError(t, gormDB.Create(&users).Error)

	ids, err := s.FindUserIDsByFirstName(ctx, "ALI")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, ids)

	ids, err = s.FindUserIDsByFirstName(ctx, "al%")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-4"}, ids)

	all, err := s.AllUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2", "u-3", "u-4", "u-5", "u-6"}, all)

	employees, err := s.ActiveEmployeeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2", "u-3", "u-4"}, employees)

	byID, err := s.ListUsers(ctx, []string{"u-1", "u-9"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, model.RoleUser, byID["u-1"].Role)

	_, err = s.GetUser(ctx, "u-9")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLiteStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t)

	sub := model.PushSubscription{Endpoint: "https://push.example/1", UserID: "u-1", P256DH: "k", Auth: "a"}
	require.NoError(t, s.SaveSubscription(ctx, sub))
	sub.Auth = "b"
	require.NoError(t, s.SaveSubscription(ctx, sub))

	subs, err := s.SubscriptionsForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "b", subs[0].Auth)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint, "u-2"))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err, "another user's delete must not remove the subscription")

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint, "u-1"))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
