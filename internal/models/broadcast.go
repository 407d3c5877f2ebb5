package models

import (
	"time"

	"github.com/lib/pq"
)

// Broadcast is the audit record of one staff announcement.
type Broadcast struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	StaffID       int64         `gorm:"not null;index" json:"staff_id"`
	Text          string        `gorm:"type:text;not null" json:"text"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	FailedChatIDs pq.Int64Array `gorm:"type:text" json:"failed_chat_ids,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Total is the number of recipients considered.
func (b *Broadcast) Total() int {
	return b.Sent + b.Failed + b.Skipped
}
