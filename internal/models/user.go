package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// User is a Telegram user who has contacted the bot at least once.
// ID is the Telegram user id and never changes; the name fields are refreshed on every upsert.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username     string    `gorm:"size:64;index" json:"username,omitempty"`
	FirstName    string    `gorm:"size:128" json:"first_name,omitempty"`
	LastName     string    `gorm:"size:128" json:"last_name,omitempty"`
	JoinedAt     time.Time `gorm:"not null;index" json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// BeforeCreate stamps JoinedAt on the first insert only.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now().UTC()
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	if u.LastActiveAt.IsZero() {
		u.LastActiveAt = u.JoinedAt
	}
	return
}

// DisplayName returns "@username", the first name, or the numeric id, in that order of preference.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}
