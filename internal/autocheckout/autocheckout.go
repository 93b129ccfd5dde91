// Package autocheckout closes sessions whose clients stopped sending presence heartbeats.
package autocheckout

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"attendance-backend/config"
	"attendance-backend/internal/apperr"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/model"
	"attendance-backend/internal/schedule"
	"attendance-backend/internal/store"
)

// Store is the persistence the reconciler needs.
type Store interface {
	store.SessionStore
	store.PresenceStore
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Open      int `json:"open"`
	Abandoned int `json:"abandoned"`
	Closed    int `json:"closed"`
	Raced     int `json:"raced"`
	Failed    int `json:"failed"`
}

// Service records presence and reconciles abandoned sessions.
type Service struct {
	cfg   *config.AttendanceConfig
	store Store
	clock clock.Clock
}

// NewService creates the reconciler.
func NewService(cfg *config.AttendanceConfig, st Store, clk clock.Clock) *Service {
	return &Service{cfg: cfg, store: st, clock: clk}
}

// Heartbeat marks the user's open session as seen now.
func (s *Service) Heartbeat(ctx context.Context, userID, sessionID string) (*model.PresenceHeartbeat, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("session id is required")
	}
	sess, err := s.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && sess.UserID != userID {
		return nil, apperr.NotFound("session %s not found", sessionID)
	}
	if !sess.IsOpen() {
		return nil, apperr.InvalidState("session %s is already closed", sessionID)
	}

	hb := model.PresenceHeartbeat{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		LastSeenAt: s.clock.Now().Unix(),
	}
	if err := s.store.UpsertHeartbeat(ctx, hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.SweepEnabled != nil && !*s.cfg.SweepEnabled {
		log.Println("Auto-checkout sweep is disabled. Not starting.")
		return
	}
	schedule.Run(ctx, "auto-checkout sweep", s.cfg.SweepInterval, func(ctx context.Context) {
		s.SweepOnce(ctx)
	})
}

// SweepOnce closes every open session whose latest heartbeat is older than the presence
// timeout, ending it at the heartbeat time. Sessions without a heartbeat stay open.
// Failures are logged per session and never abort the sweep.
func (s *Service) SweepOnce(ctx context.Context) SweepResult {
	var result SweepResult

	open, err := s.store.FindOpenSessions(ctx)
	if err != nil {
		log.Printf("Auto-checkout sweep aborted: %v", err)
		return result
	}
	result.Open = len(open)
	if len(open) == 0 {
		return result
	}

	ids := make([]string, len(open))
	for i, sess := range open {
		ids[i] = sess.ID
	}
	heartbeats, err := s.store.HeartbeatsForSessions(ctx, ids)
	if err != nil {
		log.Printf("Auto-checkout sweep aborted: %v", err)
		return result
	}

	now := s.clock.Now().Unix()
	timeout := int64(s.cfg.PresenceTimeout.Seconds())

	var closed, raced, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(max(s.cfg.SweepWorkers, 1))
	for _, sess := range open {
		hb, ok := heartbeats[sess.ID]
		if !ok || now-hb.LastSeenAt <= timeout {
			continue
		}
		result.Abandoned++

		g.Go(func() error {
			end := max(hb.LastSeenAt, sess.StartTime)
			_, err := s.store.CloseSession(ctx, sess.ID, end, true)
			switch {
			case err == nil:
				closed.Add(1)
				log.Printf("Auto-closed session %s of user %s at %d", sess.ID, sess.UserID, end)
			case apperr.Is(err, apperr.KindInvalidState):
				raced.Add(1)
			default:
				failed.Add(1)
				log.Printf("Error auto-closing session %s: %v", sess.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Closed = int(closed.Load())
	result.Raced = int(raced.Load())
	result.Failed = int(failed.Load())
	log.Printf("Auto-checkout sweep finished: %d open, %d abandoned, %d closed, %d failed",
		result.Open, result.Abandoned, result.Closed, result.Failed)
	return result
}
