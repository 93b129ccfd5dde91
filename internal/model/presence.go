package model

// PresenceHeartbeat is the latest liveness signal a client sent for one open session.
type PresenceHeartbeat struct {
	SessionID  string `gorm:"primaryKey;size:36" bson:"_id" json:"checkinId"`
	UserID     string `gorm:"size:64;not null;index" bson:"user_id" json:"userId"`
	LastSeenAt int64  `gorm:"not null" bson:"last_seen_at" json:"lastSeenAt"`
}
