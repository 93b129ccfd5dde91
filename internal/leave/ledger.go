// Package leave keeps per-user leave balances consistent with the request approval workflow.
//
// Paid leave is debited when it is applied for, not when it is approved. A pending request
// therefore already reserves its days; rejecting it refunds them and approving it changes
// nothing on the balance. Requests leave Pending exactly once.
package leave

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"attendance-backend/config"
	"attendance-backend/internal/apperr"
	"attendance-backend/internal/clock"
	"attendance-backend/internal/model"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/store"
)

const (
	subjectSubmitted = "Leave Application Submitted"
	subjectApproved  = "Leave Application Approved"
	subjectRejected  = "Leave Application Rejected"
)

// Store is the persistence the ledger needs.
type Store interface {
	store.LeaveStore
	store.UserDirectory
}

// ApplyRequest is a new leave application.
type ApplyRequest struct {
	UserID       string
	StartDate    time.Time
	EndDate      time.Time
	NumberOfDays int
	LeaveType    string
	Reason       string
}

// ApplyResult is the created request and the balance left after any debit.
type ApplyResult struct {
	Request       model.LeaveRequest `json:"leave"`
	AvailableDays int                `json:"availableDays"`
}

// ListRequest filters ListLeaves. UserID restricts to one applicant, Name to applicants whose
// first name starts with it.
type ListRequest struct {
	UserID string
	Name   string
	Status model.LeaveStatus
	parse.Pagination
}

// Page is one page of leave requests, newest first.
type Page struct {
	Leaves       []model.LeaveRequest `json:"leaves"`
	TotalRecords int64                `json:"totalRecords"`
	TotalPages   int                  `json:"totalPages"`
	CurrentPage  int                  `json:"currentPage"`
}

// Ledger applies, approves and rejects leave and grants entitlement.
type Ledger struct {
	store    Store
	cfg      *config.LeaveConfig
	notifier notification.Notifier
	clock    clock.Clock
}

// NewLedger creates a ledger. notifier may be nil.
func NewLedger(st Store, cfg *config.LeaveConfig, notifier notification.Notifier, clk clock.Clock) *Ledger {
	return &Ledger{store: st, cfg: cfg, notifier: notifier, clock: clk}
}

// IsPaid reports whether leaveType draws from the balance.
func (l *Ledger) IsPaid(leaveType string) bool {
	return strings.EqualFold(strings.TrimSpace(leaveType), l.cfg.PaidLeaveType)
}

// Apply creates a Pending request and, for paid leave, debits the balance immediately.
func (l *Ledger) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	if strings.TrimSpace(req.LeaveType) == "" {
		return nil, apperr.Validation("leave type is required")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, apperr.Validation("end date must be after start date")
	}
	if req.NumberOfDays <= 0 {
		return nil, apperr.Validation("number of days must be a positive integer, got %d", req.NumberOfDays)
	}

	now := l.clock.Now().UTC()
	leaveType := strings.TrimSpace(req.LeaveType)
	debit := 0
	if l.IsPaid(leaveType) {
		leaveType = l.cfg.PaidLeaveType
		debit = req.NumberOfDays
	}

	lr := model.LeaveRequest{
		ID:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserID:       req.UserID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		NumberOfDays: req.NumberOfDays,
		LeaveType:    leaveType,
		Status:       model.LeavePending,
		Reason:       req.Reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	available, err := l.store.ApplyLeave(ctx, &lr, debit)
	if err != nil {
		return nil, err
	}
	log.Printf("User %s applied for %d day(s) of %s (leave %s)", lr.UserID, lr.NumberOfDays, lr.LeaveType, lr.ID)

	l.notifyAdmins(subjectSubmitted, fmt.Sprintf("%s applied for %d day(s) of %s from %s to %s.",
		l.displayName(ctx, lr.UserID), lr.NumberOfDays, lr.LeaveType,
		lr.StartDate.Format(time.DateOnly), lr.EndDate.Format(time.DateOnly)))

	return &ApplyResult{Request: lr, AvailableDays: available}, nil
}

// Approve moves a Pending request to Approved. The balance is unchanged.
func (l *Ledger) Approve(ctx context.Context, id string) (*model.LeaveRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("leave id is required")
	}
	req, err := l.store.TransitionLeave(ctx, id, model.LeaveApproved, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("Leave %s of user %s approved", req.ID, req.UserID)
	l.notifyDecision(ctx, req, subjectApproved)
	return req, nil
}

// Reject moves a Pending request to Rejected and refunds paid days.
func (l *Ledger) Reject(ctx context.Context, id string) (*model.LeaveRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("leave id is required")
	}
	req, err := l.store.TransitionLeave(ctx, id, model.LeaveRejected, func(req model.LeaveRequest) int {
		if l.IsPaid(req.LeaveType) {
			return req.NumberOfDays
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Leave %s of user %s rejected", req.ID, req.UserID)
	l.notifyDecision(ctx, req, subjectRejected)
	return req, nil
}

// List returns a page of requests matching the filter.
func (l *Ledger) List(ctx context.Context, req ListRequest) (*Page, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", req.Status)
	}
	p := req.Pagination.Normalize()
	page := &Page{Leaves: []model.LeaveRequest{}, CurrentPage: p.Page}

	var userIDs []string
	if req.UserID != "" {
		userIDs = []string{req.UserID}
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		matched, err := l.store.FindUserIDsByFirstName(ctx, name)
		if err != nil {
			return nil, err
		}
		if req.UserID != "" {
			matched = intersect(matched, req.UserID)
		}
		if len(matched) == 0 {
			return page, nil
		}
		userIDs = matched
	}

	leaves, total, err := l.store.ListLeaves(ctx, store.LeaveFilter{
		UserIDs: userIDs,
		Status:  req.Status,
		Offset:  p.Offset(),
		Limit:   p.Limit,
	})
	if err != nil {
		return nil, err
	}
	if leaves != nil {
		page.Leaves = leaves
	}
	page.TotalRecords = total
	page.TotalPages = p.TotalPages(total)
	return page, nil
}

func intersect(ids []string, only string) []string {
	for _, id := range ids {
		if id == only {
			return []string{only}
		}
	}
	return nil
}

// Balance returns the user's balance and history, creating an empty balance if needed.
func (l *Ledger) Balance(ctx context.Context, userID string) (*model.LeaveBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	return l.store.GetBalance(ctx, userID)
}

// GrantToAll adds the configured grant to every known user and every existing balance.
// It returns the number of balances credited.
func (l *Ledger) GrantToAll(ctx context.Context) (int, error) {
	users, err := l.store.AllUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	holders, err := l.store.BalanceHolders(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(users)+len(holders))
	ids := make([]string, 0, len(users)+len(holders))
	for _, id := range append(users, holders...) {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := l.store.GrantLeave(ctx, ids, l.cfg.GrantDays); err != nil {
		return 0, err
	}
	log.Printf("Granted %d leave day(s) to %d user(s)", l.cfg.GrantDays, len(ids))
	return len(ids), nil
}

func (l *Ledger) displayName(ctx context.Context, userID string) string {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil || u.FirstName == "" {
		return "User " + userID
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (l *Ledger) notifyDecision(ctx context.Context, req *model.LeaveRequest, subject string) {
	status := strings.ToLower(string(req.Status))
	l.notify(req.UserID, subject, fmt.Sprintf("Your %s request for %d day(s) starting %s was %s.",
		req.LeaveType, req.NumberOfDays, req.StartDate.Format(time.DateOnly), status))
	l.notifyAdmins(subject, fmt.Sprintf("The %s request of %s for %d day(s) was %s.",
		req.LeaveType, l.displayName(ctx, req.UserID), req.NumberOfDays, status))
}

func (l *Ledger) notifyAdmins(subject, body string) {
	for _, admin := range l.cfg.AdminRecipients {
		l.notify(admin, subject, body)
	}
}

func (l *Ledger) notify(recipient, subject, body string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(recipient, subject, body)
}
