// Package timer implements the open/closed lifecycle of work sessions.
package timer

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/hours"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// CheckInRequest describes a new session.
type CheckInRequest struct {
	UserID      string
	ProjectID   string
	Kind        model.SessionKind
	Description string
}

// Result is a session after a state change together with the owner's live totals.
type Result struct {
	Session  model.Session `json:"session"`
	Duration string        `json:"duration,omitempty"`
	Hours    hours.Summary `json:"hours"`
}

// Service drives session state transitions.
type Service struct {
	sessions store.SessionStore
	hours    *hours.Aggregator
	clock    clock.Clock
	newID    func() string
}

// NewService creates a timer service.
func NewService(sessions store.SessionStore, agg *hours.Aggregator, clk clock.Clock) *Service {
	return &Service{
		sessions: sessions,
		hours:    agg,
		clock:    clk,
		newID:    uuid.NewString,
	}
}

// CheckIn opens a session starting now. A user with an open session must check out first.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*Result, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	if !req.Kind.Valid() {
		return nil, apperr.Validation("invalid session type %q: expected work, meeting or activity", req.Kind)
	}

	sess := model.Session{
		ID:          s.newID(),
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		Kind:        req.Kind,
		Description: req.Description,
		StartTime:   s.clock.Now().Unix(),
	}
	if err := s.sessions.CreateSession(ctx, &sess); err != nil {
		return nil, err
	}
	log.Printf("User %s checked in (session %s, %s)", sess.UserID, sess.ID, sess.Kind)

	summary, err := s.hours.UserSummary(ctx, sess.UserID, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Session: sess, Hours: summary}, nil
}

// CheckOut closes the session at now. A session owned by someone other than userID is
// reported as not found. An empty userID skips the ownership check.
func (s *Service) CheckOut(ctx context.Context, userID, sessionID string, isAuto bool) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("session id is required")
	}
	sess, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && sess.UserID != userID {
		return nil, apperr.NotFound("session %s not found", sessionID)
	}
	if !sess.IsOpen() {
		return nil, apperr.InvalidState("session %s is already closed", sessionID)
	}

	closed, err := s.sessions.CloseSession(ctx, sessionID, s.clock.Now().Unix(), isAuto)
	if err != nil {
		return nil, err
	}
	duration := hours.FormatHMS(closed.DurationSeconds())
	log.Printf("User %s checked out (session %s, duration %s)", closed.UserID, closed.ID, duration)

	summary, err := s.hours.UserSummary(ctx, closed.UserID, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Session: *closed, Duration: duration, Hours: summary}, nil
}

// Current returns the user's open session.
func (s *Service) Current(ctx context.Context, userID string) (*model.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	return s.sessions.FindOpenByUser(ctx, userID)
}

// Hours returns the user's live totals, plus the closed total over rng when given.
func (s *Service) Hours(ctx context.Context, userID string, rng *hours.Window) (hours.Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return hours.Summary{}, apperr.Validation("user id is required")
	}
	return s.hours.UserSummary(ctx, userID, rng)
}
