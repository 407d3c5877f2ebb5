package models

import "time"

// StaffAdmin marks a user allowed to answer requests.
// Removal clears IsActive; rows are never deleted. The user row may not exist yet
// (the owner and /addadmin targets are recorded before they ever message the bot).
type StaffAdmin struct {
	UserID   int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IsActive bool      `gorm:"not null" json:"is_active"`
	AddedBy  *int64    `json:"added_by,omitempty"`
	AddedAt  time.Time `gorm:"not null" json:"added_at"`
}

func (StaffAdmin) TableName() string {
	return "admins"
}
