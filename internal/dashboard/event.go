// Package dashboard streams request lifecycle events to connected staff over websockets.
package dashboard

import "time"

type EventType string

const (
	EventRequestCreated EventType = "request_created"
	EventReplyAdded     EventType = "reply_added"
	EventStatusChanged  EventType = "status_changed"
	EventBroadcastDone  EventType = "broadcast_done"
	EventStaffChanged   EventType = "staff_changed"
)

// Event is what a dashboard client receives, one JSON object per frame.
type Event struct {
	Type      EventType              `json:"type"`
	RequestID uint                   `json:"request_id,omitempty"`
	UserID    int64                  `json:"user_id,omitempty"`
	StaffID   int64                  `json:"staff_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Preview   string                 `json:"preview,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}

// Publisher is implemented by Hub. A nil-safe no-op is available as Discard.
type Publisher interface {
	Publish(ev Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}
