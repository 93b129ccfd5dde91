package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

var errInsufficient = errors.New("insufficient balance")

func ensureBalance(tx *gorm.DB, userID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.LeaveBalance{UserID: userID}).Error
}

// ApplyLeave runs the debit as a guarded decrement (available_days >= n) so two concurrent
// applications can never overdraw the balance.
func (s *gormStore) ApplyLeave(ctx context.Context, req *model.LeaveRequest, debitDays int) (int, error) {
	var available int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureBalance(tx, req.UserID); err != nil {
			return err
		}

		if debitDays > 0 {
			res := tx.Model(&model.LeaveBalance{}).
				Where("user_id = ? AND available_days >= ?", req.UserID, debitDays).
				Update("available_days", gorm.Expr("available_days - ?", debitDays))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errInsufficient
			}
		}

		if err := tx.Create(req).Error; err != nil {
			return err
		}

		entry := model.LeaveHistoryEntry{
			UserID:         req.UserID,
			LeaveRequestID: req.ID,
			LeaveType:      req.LeaveType,
			Status:         req.Status,
			AppliedAt:      req.CreatedAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Model(&model.LeaveBalance{}).
			Where("user_id = ?", req.UserID).
			Pluck("available_days", &available).Error
	})
	if errors.Is(err, errInsufficient) {
		return 0, apperr.InsufficientBalance("not enough %s balance for %d day(s)", req.LeaveType, debitDays)
	}
	if err != nil {
		return 0, apperr.Persistence(err, "apply leave for user %s", req.UserID)
	}
	return available, nil
}

// TransitionLeave only updates rows still in Pending, which makes approve and reject
// single-shot even when two admins act at once.
func (s *gormStore) TransitionLeave(ctx context.Context, id string, status model.LeaveStatus, refund RefundFunc) (*model.LeaveRequest, error) {
	var req model.LeaveRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, "id = ?", id).Error; err != nil {
			return lookupErr(err, "leave request %s not found", id)
		}

		res := tx.Model(&model.LeaveRequest{}).
			Where("id = ? AND status = ?", id, model.LeavePending).
			Update("status", status)
		if res.Error != nil {
			return apperr.Persistence(res.Error, "update leave request %s", id)
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("leave request %s is no longer pending", id)
		}

		if refund != nil {
			if days := refund(req); days > 0 {
				if err := tx.Model(&model.LeaveBalance{}).
					Where("user_id = ?", req.UserID).
					Update("available_days", gorm.Expr("available_days + ?", days)).Error; err != nil {
					return apperr.Persistence(err, "refund %d day(s) to user %s", days, req.UserID)
				}
			}
		}

		if err := tx.Model(&model.LeaveHistoryEntry{}).
			Where("leave_request_id = ?", id).
			Update("status", status).Error; err != nil {
			return apperr.Persistence(err, "update history entry for leave %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	req.Status = status
	return &req, nil
}

func (s *gormStore) FindLeave(ctx context.Context, id string) (*model.LeaveRequest, error) {
	var req model.LeaveRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, lookupErr(err, "leave request %s not found", id)
	}
	return &req, nil
}

func (s *gormStore) ListLeaves(ctx context.Context, filter LeaveFilter) ([]model.LeaveRequest, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.LeaveRequest{})
	if len(filter.UserIDs) > 0 {
		q = q.Where("user_id IN ?", filter.UserIDs)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence(err, "count leave requests")
	}

	var leaves []model.LeaveRequest
	q = q.Order("created_at DESC").Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&leaves).Error; err != nil {
		return nil, 0, apperr.Persistence(err, "list leave requests")
	}
	return leaves, total, nil
}

func (s *gormStore) GetBalance(ctx context.Context, userID string) (*model.LeaveBalance, error) {
	db := s.db.WithContext(ctx)
	if err := ensureBalance(db, userID); err != nil {
		return nil, apperr.Persistence(err, "create balance for user %s", userID)
	}

	var balance model.LeaveBalance
	err := db.Preload("History", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&balance, "user_id = ?", userID).Error
	if err != nil {
		return nil, apperr.Persistence(err, "load balance for user %s", userID)
	}
	return &balance, nil
}

func (s *gormStore) BalanceHolders(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.LeaveBalance{}).Pluck("user_id", &ids).Error; err != nil {
		return nil, apperr.Persistence(err, "list balance holders")
	}
	return ids, nil
}

// GrantLeave is a single upsert: new balances start at days, existing ones are incremented in SQL.
func (s *gormStore) GrantLeave(ctx context.Context, userIDs []string, days int) error {
	if len(userIDs) == 0 || days <= 0 {
		return nil
	}
	balances := make([]model.LeaveBalance, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		balances = append(balances, model.LeaveBalance{UserID: id, AvailableDays: days})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"available_days": gorm.Expr("leave_balances.available_days + ?", days),
		}),
	}).CreateInBatches(&balances, 500).Error
	return apperr.Persistence(err, "grant %d day(s) to %d user(s)", days, len(balances))
}
