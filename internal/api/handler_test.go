package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/config"
	"attendance-backend/internal/auth"
	"attendance-backend/internal/autocheckout"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/hours"
	"attendance-backend/internal/leave"
	"attendance-backend/internal/model"
	"attendance-backend/internal/report"
	"attendance-backend/internal/store/storetest"
	"attendance-backend/internal/timer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	clock  *clock.Manual
	user   string
	admin  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000},
		Auth:   config.AuthConfig{JWTSecret: "test-secret"},
	}
	require.NoError(t, cfg.ApplyDefaults())

	st, gormDB := storetest.NewSQLite(t)
	storetest.SeedUsers(t, gormDB,
		model.User{ID: "u-1", FirstName: "Asha", LastName: "Rao"},
		model.User{ID: "admin-1", FirstName: "Ada", Role: model.RoleAdmin},
	)

	clk := clock.NewManual(time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC).Unix())
	agg := hours.NewAggregator(st, &cfg.Attendance, clk)
	h := NewHandler(Services{
		Timer:    timer.NewService(st, agg, clk),
		Presence: autocheckout.NewService(&cfg.Attendance, st, clk),
		Leave:    leave.NewLedger(st, &cfg.Leave, nil, clk),
		Reports:  report.NewReporter(st, agg, 2),
		Subs:     st,
		Location: cfg.Attendance.Location,
	}, nil)

	provider, err := auth.NewProvider(&cfg.Auth, nil)
	require.NoError(t, err)
	user, err := provider.Issue("u-1", model.RoleUser, time.Hour)
	require.NoError(t, err)
	admin, err := provider.Issue("admin-1", model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	return &testServer{
		router: NewRouter(h, provider, &cfg.Server),
		clock:  clk,
		user:   user,
		admin:  admin,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/timer/current", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/timer/current", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimerEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/timer/checkin", s.user, gin.H{"type": "work", "projectId": "p-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	in := decode[timer.Result](t, w)
	assert.True(t, in.Session.IsOpen())
	assert.Equal(t, "u-1", in.Session.UserID)

	w = s.do(t, http.MethodPost, "/api/timer/checkin", s.user, gin.H{"type": "work"})
	assert.Equal(t, http.StatusConflict, w.Code, "a second open session is refused")

	w = s.do(t, http.MethodPost, "/api/timer/checkin", s.admin, gin.H{"type": "nap"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/timer/current", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, in.Session.ID, decode[model.Session](t, w).ID)

	w = s.do(t, http.MethodPost, "/api/presence", s.user, gin.H{"checkinId": in.Session.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/timer/checkout", s.admin, gin.H{"checkinId": in.Session.ID})
	assert.Equal(t, http.StatusNotFound, w.Code, "sessions of other users are invisible")

	s.clock.Advance(75 * time.Minute)
	w = s.do(t, http.MethodPost, "/api/timer/checkout", s.user, gin.H{"checkinId": in.Session.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[timer.Result](t, w)
	assert.Equal(t, "01:15:00", out.Duration)
	assert.Equal(t, "01:15:00", out.Hours.Daily.Time)
	assert.False(t, out.Session.AutoClosed)

	w = s.do(t, http.MethodPost, "/api/timer/checkout", s.user, gin.H{"checkinId": in.Session.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/timer/current", s.user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/timer/hours", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4500), decode[hours.Summary](t, w).Weekly.Seconds)

	w = s.do(t, http.MethodGet, "/api/timer/hours?start=10&end=5", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/timer/hours?userId=admin-1", s.user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/timer/hours?userId=u-1", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "01:15:00", decode[hours.Summary](t, w).Daily.Time)
}

func TestCheckOut_ClientFlagsIdleClose(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/timer/checkin", s.user, gin.H{"type": "meeting"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[timer.Result](t, w).Session.ID

	s.clock.Advance(20 * time.Minute)
	w = s.do(t, http.MethodPost, "/api/timer/checkout", s.user, gin.H{"checkinId": id, "isAutoCheckout": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[timer.Result](t, w)
	assert.True(t, out.Session.AutoClosed)
	assert.Equal(t, "00:20:00", out.Duration)

	w = s.do(t, http.MethodGet, "/api/activity?timeframe=today&page=1000000000000000000", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveEndpoints(t *testing.T) {
	s := newTestServer(t)

	apply := gin.H{"startDate": "2024-03-11", "endDate": "2024-03-13", "numberOfDays": 2, "leaveType": "Paid Leave"}
	w := s.do(t, http.MethodPost, "/api/leaves", s.user, apply)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "nothing granted yet")

	w = s.do(t, http.MethodPost, "/api/admin/leaves/grant", s.user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPost, "/api/admin/leaves/grant", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"granted":2}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/leaves", s.user, apply)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	applied := decode[leave.ApplyResult](t, w)
	assert.Equal(t, 1, applied.AvailableDays)

	w = s.do(t, http.MethodPost, "/api/leaves", s.user, gin.H{"startDate": "11/03/2024", "endDate": "2024-03-13", "numberOfDays": 1, "leaveType": "Sick"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/leaves/"+applied.Request.ID+"/approve", s.user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/leaves/"+applied.Request.ID+"/reject", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.LeaveRejected, decode[model.LeaveRequest](t, w).Status)

	w = s.do(t, http.MethodPost, "/api/leaves/"+applied.Request.ID+"/approve", s.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/leaves/unknown/approve", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/leaves/balance", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[model.LeaveBalance](t, w).AvailableDays, "rejection refunds the debit")

	w = s.do(t, http.MethodGet, "/api/leaves?status=Rejected", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[leave.Page](t, w)
	assert.Equal(t, int64(1), page.TotalRecords)
	assert.Equal(t, 1, page.CurrentPage)

	w = s.do(t, http.MethodGet, "/api/leaves?status=rejected", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[leave.Page](t, w).TotalRecords)

	w = s.do(t, http.MethodGet, "/api/leaves?status=Cancelled", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/leaves?page=0", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/leaves?page=1000000000000000000", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/timer/checkin", s.user, gin.H{"type": "work", "projectId": "p-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[timer.Result](t, w).Session.ID
	s.clock.Advance(2 * time.Hour)
	w = s.do(t, http.MethodPost, "/api/timer/checkout", s.user, gin.H{"checkinId": id})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/activity?timeframe=today", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	act := decode[report.Activity](t, w)
	require.Equal(t, int64(1), act.TotalRecords, "the admin has no row of their own")
	assert.Equal(t, "u-1", act.Results[0].UserID)
	assert.Equal(t, "02:00:00", act.Results[0].TotalTime)
	assert.Equal(t, "25.00%", act.Results[0].TotalWorkPercentage)

	w = s.do(t, http.MethodGet, "/api/activity?timeframe=today", s.admin, nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = s.do(t, http.MethodGet, "/api/activity?timeframe=today", s.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"), "cache entries are per identity")
	assert.Equal(t, int64(1), decode[report.Activity](t, w).TotalRecords)

	w = s.do(t, http.MethodGet, "/api/activity?timeframe=year", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/activity?from=2024-03-06&to=2024-03-06", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[report.Activity](t, w).WorkDays)

	w = s.do(t, http.MethodGet, "/api/activity/counts", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode[report.ActiveCounts](t, w)
	assert.Equal(t, report.Counts{Users: 1, Projects: 1}, counts.Today)
}

func TestSubscriptionEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/subscriptions", s.user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	sub := gin.H{"endpoint": "https://push.example/abc", "p256dh": "key", "auth": "secret"}
	w = s.do(t, http.MethodPut, "/api/subscriptions", s.user, sub)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", s.user, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/subscriptions", s.user, gin.H{"endpoint": "https://push.example/abc"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc", s.user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
