package models

import (
	"strings"
	"time"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []RequestStatus{StatusPending, StatusInProgress, StatusCompleted}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Emoji is the marker used in request listings.
func (s RequestStatus) Emoji() string {
	switch s {
	case StatusPending:
		return "⏳"
	case StatusInProgress:
		return "🔄"
	case StatusCompleted:
		return "✅"
	}
	return "❓"
}

// ParseStatus accepts the canonical names plus a dash form ("in-progress").
func ParseStatus(raw string) (RequestStatus, bool) {
	s := RequestStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	return s, s.Valid()
}

// Request is a single support inquiry.
// Status only moves forward: pending -> in_progress -> completed, or pending -> completed.
type Request struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UserID    int64         `gorm:"not null;index" json:"user_id"`
	User      *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Body      string        `gorm:"type:text;not null" json:"body"`
	Status    RequestStatus `gorm:"size:16;not null;index" json:"status"`
	StaffID   *int64        `json:"staff_id,omitempty"`
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Replies   []Reply       `gorm:"foreignKey:RequestID" json:"replies,omitempty"`
}

// CanTransition reports whether a manual status change from the current status to next is allowed.
// Completed is terminal and only a reply gets a request there; setting the same status
// again is a no-op and allowed.
func (r *Request) CanTransition(next RequestStatus) bool {
	if !next.Valid() {
		return false
	}
	if r.Status == StatusCompleted {
		return next == StatusCompleted
	}
	if next == StatusCompleted {
		return false
	}
	if r.Status == StatusInProgress && next == StatusPending {
		return false
	}
	return true
}

// LastReply returns the newest loaded reply, or nil.
func (r *Request) LastReply() *Reply {
	if len(r.Replies) == 0 {
		return nil
	}
	last := &r.Replies[0]
	for i := range r.Replies {
		if r.Replies[i].ID > last.ID {
			last = &r.Replies[i]
		}
	}
	return last
}
