package model

import "time"

const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	StatusActive = "active"
)

// User is the subset of the user directory the attendance core reads.
// The rows are owned by the user management service.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" bson:"_id" json:"id"`
	FirstName string    `gorm:"size:128;not null" bson:"first_name" json:"firstName"`
	LastName  string    `gorm:"size:128" bson:"last_name" json:"lastName"`
	Email     string    `gorm:"size:256" bson:"email" json:"email"`
	Role      string    `gorm:"size:16;not null;default:user" bson:"role" json:"role"`
	Status    string    `gorm:"size:16;not null;default:active" bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
