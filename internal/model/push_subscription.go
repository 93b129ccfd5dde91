package model

import "time"

// PushSubscription holds the information for a browser push subscription of one user.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" bson:"_id"`
	UserID    string    `gorm:"size:64;not null;index" bson:"user_id"`
	P256DH    string    `gorm:"column:p256dh;not null" bson:"p256dh"`
	Auth      string    `gorm:"not null" bson:"auth"`
	CreatedAt time.Time `gorm:"not null" bson:"created_at"`
}
