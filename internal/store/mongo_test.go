package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

// newMongoStore connects to MONGO_TEST_URL and returns a store on a throwaway database.
func newMongoStore(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("MONGO_TEST_URL")
	if url == "" {
		t.Skip("MONGO_TEST_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)
	database := client.Database(fmt.Sprintf("attendance_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s, err := NewMongoStore(ctx, database)
	require.NoError(t, err)
	return s
}

func TestMongoStore_SessionLifecycle(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &model.Session{ID: "s-1", UserID: "u-1", Kind: model.KindWork, StartTime: 1000}))
	err := s.CreateSession(ctx, &model.Session{ID: "s-2", UserID: "u-1", Kind: model.KindWork, StartTime: 1100})
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "got %v", err)

	closed, err := s.CloseSession(ctx, "s-1", 4600, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), closed.DurationSeconds())

	_, err = s.CloseSession(ctx, "s-1", 4700, false)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	got, err := s.QueryByUserAndRange(ctx, "u-1", 0, 5000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsOpen())
}

func TestMongoStore_LeaveLedger(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.ApplyLeave(ctx, paidLeave("l-0", "u-1", 1, now), 1)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientBalance), "got %v", err)

	require.NoError(t, s.GrantLeave(ctx, []string{"u-1"}, 3))
	left, err := s.ApplyLeave(ctx, paidLeave("l-1", "u-1", 2, now), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = s.TransitionLeave(ctx, "l-1", model.LeaveRejected, func(req model.LeaveRequest) int { return req.NumberOfDays })
	require.NoError(t, err)
	_, err = s.TransitionLeave(ctx, "l-1", model.LeaveApproved, nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	balance, err := s.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance.AvailableDays)
	require.Len(t, balance.History, 1)
	assert.Equal(t, model.LeaveRejected, balance.History[0].Status)
}
