package models

import "time"

// Reply is a staff answer to a Request. A request may collect several.
type Reply struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;index" json:"request_id"`
	StaffID   int64     `gorm:"not null" json:"staff_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
