package store

import "attendance-backend/internal/model"

// LeaveFilter narrows ListLeaves. Empty fields do not filter.
type LeaveFilter struct {
	UserIDs []string
	Status  model.LeaveStatus
	Offset  int
	Limit   int
}

// RefundFunc returns the number of days to credit back when a leave request is rejected.
type RefundFunc func(req model.LeaveRequest) int
