package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

// SessionStore is the durable record of check-in/check-out intervals.
type SessionStore interface {
	// CreateSession inserts an open session. It fails with InvalidState when the user
	// already has an open session.
	CreateSession(ctx context.Context, s *model.Session) error
	FindOpenByUser(ctx context.Context, userID string) (*model.Session, error)
	FindSessionByID(ctx context.Context, id string) (*model.Session, error)
	// CloseSession sets the end time only if the session is still open.
	CloseSession(ctx context.Context, id string, endTime int64, autoClosed bool) (*model.Session, error)
	// QueryByUserAndRange returns the user's sessions overlapping [start, end), open ones included.
	QueryByUserAndRange(ctx context.Context, userID string, start, end int64) ([]model.Session, error)
	FindOpenSessions(ctx context.Context) ([]model.Session, error)
	DistinctUsersInRange(ctx context.Context, start, end int64) ([]string, error)
	DistinctProjectsInRange(ctx context.Context, start, end int64) ([]string, error)
}

// PresenceStore keeps the latest heartbeat per open session.
type PresenceStore interface {
	UpsertHeartbeat(ctx context.Context, hb model.PresenceHeartbeat) error
	HeartbeatsForSessions(ctx context.Context, sessionIDs []string) (map[string]model.PresenceHeartbeat, error)
}

// LeaveStore persists leave requests and balances. Every mutation is atomic per call.
type LeaveStore interface {
	// ApplyLeave creates the request, debits debitDays from the balance when debitDays > 0
	// and appends the pending history entry. It returns the balance left after the debit.
	ApplyLeave(ctx context.Context, req *model.LeaveRequest, debitDays int) (int, error)
	// TransitionLeave moves a Pending request to status, crediting refund(req) days.
	TransitionLeave(ctx context.Context, id string, status model.LeaveStatus, refund RefundFunc) (*model.LeaveRequest, error)
	FindLeave(ctx context.Context, id string) (*model.LeaveRequest, error)
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]model.LeaveRequest, int64, error)
	// GetBalance returns the user's balance, creating an empty one if absent.
	GetBalance(ctx context.Context, userID string) (*model.LeaveBalance, error)
	BalanceHolders(ctx context.Context) ([]string, error)
	// GrantLeave adds days to every listed user's balance, creating missing balances.
	GrantLeave(ctx context.Context, userIDs []string, days int) error
}

// UserDirectory reads users owned by the user management service.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, ids []string) (map[string]model.User, error)
	AllUserIDs(ctx context.Context) ([]string, error)
	// ActiveEmployeeIDs lists active users with the user role; admins are excluded.
	ActiveEmployeeIDs(ctx context.Context) ([]string, error)
	FindUserIDsByFirstName(ctx context.Context, prefix string) ([]string, error)
}

// SubscriptionStore keeps browser push subscriptions per user.
type SubscriptionStore interface {
	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint, userID string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
}

// Store defines the interface for all database operations.
type Store interface {
	SessionStore
	PresenceStore
	LeaveStore
	UserDirectory
	SubscriptionStore
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func lookupErr(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Persistence(err, format, args...)
}

// CreateSession inserts an open session unless the user already has one. The partial unique
// index on sessions(user_id) WHERE end_time IS NULL catches check-ins that race past the pre-check.
func (s *gormStore) CreateSession(ctx context.Context, sess *model.Session) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&model.Session{}).
			Where("user_id = ? AND end_time IS NULL", sess.UserID).
			Count(&open).Error; err != nil {
			return apperr.Persistence(err, "count open sessions for user %s", sess.UserID)
		}
		if open > 0 {
			return apperr.InvalidState("user %s already has an open session", sess.UserID)
		}
		return tx.Create(sess).Error
	})
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}

	if existing, ferr := s.FindOpenByUser(ctx, sess.UserID); ferr == nil && existing.ID != sess.ID {
		return apperr.InvalidState("user %s already has an open session", sess.UserID)
	}
	return apperr.Persistence(err, "create session for user %s", sess.UserID)
}

func (s *gormStore) FindOpenByUser(ctx context.Context, userID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND end_time IS NULL", userID).
		Order("start_time DESC").
		First(&sess).Error
	if err != nil {
		return nil, lookupErr(err, "no open session for user %s", userID)
	}
	return &sess, nil
}

func (s *gormStore) FindSessionByID(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "session %s not found", id)
	}
	return &sess, nil
}

// CloseSession is a conditional update: only a row whose end_time is still NULL is touched,
// so of two concurrent check-outs exactly one succeeds.
func (s *gormStore) CloseSession(ctx context.Context, id string, endTime int64, autoClosed bool) (*model.Session, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND end_time IS NULL AND start_time <= ?", id, endTime).
		Updates(map[string]any{"end_time": endTime, "auto_closed": autoClosed})
	if res.Error != nil {
		return nil, apperr.Persistence(res.Error, "close session %s", id)
	}

	sess, err := s.FindSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if !sess.IsOpen() {
			return nil, apperr.InvalidState("session %s is already closed", id)
		}
		return nil, apperr.Validation("end time %d is before start time %d of session %s", endTime, sess.StartTime, id)
	}
	return sess, nil
}

func overlapping(db *gorm.DB, start, end int64) *gorm.DB {
	return db.Where("start_time < ? AND (end_time IS NULL OR end_time > ?)", end, start)
}

func (s *gormStore) QueryByUserAndRange(ctx context.Context, userID string, start, end int64) ([]model.Session, error) {
	var sessions []model.Session
	q := overlapping(s.db.WithContext(ctx).Where("user_id = ?", userID), start, end)
	if err := q.Order("start_time ASC").Find(&sessions).Error; err != nil {
		return nil, apperr.Persistence(err, "query sessions for user %s", userID)
	}
	return sessions, nil
}

func (s *gormStore) FindOpenSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("end_time IS NULL").
		Order("start_time ASC").
		Find(&sessions).Error; err != nil {
		return nil, apperr.Persistence(err, "fetch open sessions")
	}
	return sessions, nil
}

func (s *gormStore) DistinctUsersInRange(ctx context.Context, start, end int64) ([]string, error) {
	var ids []string
	q := overlapping(s.db.WithContext(ctx).Model(&model.Session{}), start, end)
	if err := q.Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "distinct users in range")
	}
	return ids, nil
}

func (s *gormStore) DistinctProjectsInRange(ctx context.Context, start, end int64) ([]string, error) {
	var ids []string
	q := overlapping(s.db.WithContext(ctx).Model(&model.Session{}), start, end).Where("project_id <> ''")
	if err := q.Distinct("project_id").Order("project_id").Pluck("project_id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "distinct projects in range")
	}
	return ids, nil
}

func (s *gormStore) UpsertHeartbeat(ctx context.Context, hb model.PresenceHeartbeat) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "last_seen_at"}),
	}).Create(&hb).Error
	return apperr.Persistence(err, "upsert heartbeat for session %s", hb.SessionID)
}

func (s *gormStore) HeartbeatsForSessions(ctx context.Context, sessionIDs []string) (map[string]model.PresenceHeartbeat, error) {
	result := make(map[string]model.PresenceHeartbeat, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return result, nil
	}
	var heartbeats []model.PresenceHeartbeat
	if err := s.db.WithContext(ctx).Where("session_id IN ?", sessionIDs).Find(&heartbeats).Error; err != nil {
		return nil, apperr.Persistence(err, "fetch heartbeats")
	}
	for _, hb := range heartbeats {
		result[hb.SessionID] = hb
	}
	return result, nil
}
