package model

import "time"

// SessionKind classifies what a session was spent on.
type SessionKind string

const (
	KindWork     SessionKind = "work"
	KindMeeting  SessionKind = "meeting"
	KindActivity SessionKind = "activity"
)

// Valid reports whether k is one of the known session kinds.
func (k SessionKind) Valid() bool {
	switch k {
	case KindWork, KindMeeting, KindActivity:
		return true
	}
	return false
}

// Session is a single check-in/check-out interval. A nil EndTime means the session is open.
// StartTime and EndTime are epoch seconds.
type Session struct {
	ID          string      `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	UserID      string      `gorm:"size:64;not null;index:idx_sessions_user_start,priority:1" bson:"user_id" json:"userId"`
	ProjectID   string      `gorm:"size:64;index" bson:"project_id,omitempty" json:"projectId,omitempty"`
	Kind        SessionKind `gorm:"size:16;not null" bson:"kind" json:"type"`
	Description string      `bson:"description,omitempty" json:"description,omitempty"`
	StartTime   int64       `gorm:"not null;index:idx_sessions_user_start,priority:2" bson:"start_time" json:"startTime"`
	EndTime     *int64      `gorm:"index" bson:"end_time" json:"endTime"`
	AutoClosed  bool        `gorm:"not null;default:false" bson:"auto_closed" json:"isAutoCheckout"`
	CreatedAt   time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updatedAt"`
}

// IsOpen reports whether the session has not been checked out yet.
func (s Session) IsOpen() bool {
	return s.EndTime == nil
}

// DurationSeconds returns endTime - startTime for a closed session and 0 for an open one.
func (s Session) DurationSeconds() int64 {
	if s.EndTime == nil {
		return 0
	}
	return *s.EndTime - s.StartTime
}
