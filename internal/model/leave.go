package model

import "time"

// LeaveStatus is the approval state of a leave request. Pending is the only non-terminal state.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "Pending"
	LeaveApproved LeaveStatus = "Approved"
	LeaveRejected LeaveStatus = "Rejected"
)

// Valid reports whether s is one of the known statuses.
func (s LeaveStatus) Valid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected:
		return true
	}
	return false
}

// LeaveRequest is a single application for leave.
type LeaveRequest struct {
	ID           string      `gorm:"primaryKey;size:26" bson:"_id" json:"id"`
	UserID       string      `gorm:"size:64;not null;index" bson:"user_id" json:"userId"`
	StartDate    time.Time   `gorm:"not null" bson:"start_date" json:"startDate"`
	EndDate      time.Time   `gorm:"not null" bson:"end_date" json:"endDate"`
	NumberOfDays int         `gorm:"not null" bson:"number_of_days" json:"numberOfDays"`
	LeaveType    string      `gorm:"size:64;not null" bson:"leave_type" json:"leaveType"`
	Status       LeaveStatus `gorm:"size:16;not null;index" bson:"status" json:"status"`
	Reason       string      `bson:"reason" json:"reason"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updatedAt"`
}

// LeaveBalance is the per-user paid leave entitlement and the mirror of its requests.
type LeaveBalance struct {
	UserID        string              `gorm:"primaryKey;size:64" bson:"_id" json:"userId"`
	AvailableDays int                 `gorm:"not null;default:0;check:available_days >= 0" bson:"available_days" json:"availableDays"`
	History       []LeaveHistoryEntry `gorm:"foreignKey:UserID;references:UserID" bson:"history" json:"history"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updatedAt"`
}

// LeaveHistoryEntry mirrors the status of one leave request inside a balance.
type LeaveHistoryEntry struct {
	ID             uint        `gorm:"primaryKey" bson:"-" json:"-"`
	UserID         string      `gorm:"size:64;not null;index" bson:"-" json:"-"`
	LeaveRequestID string      `gorm:"size:26;not null;uniqueIndex" bson:"leave_request_id" json:"leaveRequestId"`
	LeaveType      string      `gorm:"size:64;not null" bson:"leave_type" json:"leaveType"`
	Status         LeaveStatus `gorm:"size:16;not null" bson:"status" json:"status"`
	AppliedAt      time.Time   `gorm:"not null" bson:"applied_at" json:"dateOfApply"`
}
