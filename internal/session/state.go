// Package session keeps the per-user multi-turn capture state.
// A user has at most one State; setting a new one replaces the old one.
package session

import "fmt"

type Kind string

const (
	KindIdle                  Kind = ""
	KindAwaitingRequestBody   Kind = "awaiting_request_body"
	KindAwaitingBroadcastText Kind = "awaiting_broadcast_text"
	KindAwaitingSearchQuery   Kind = "awaiting_search_query"
	KindAwaitingReplyTarget   Kind = "awaiting_reply_target"
	KindAwaitingReplyBody     Kind = "awaiting_reply_body"
)

// State is a tagged variant. RequestID is only meaningful for KindAwaitingReplyBody.
type State struct {
	Kind      Kind `json:"kind"`
	RequestID uint `json:"request_id,omitempty"`
}

func Idle() State { return State{} }
func AwaitingRequestBody() State { return State{Kind: KindAwaitingRequestBody} }
func AwaitingBroadcastText() State { return State{Kind: KindAwaitingBroadcastText} }
func AwaitingSearchQuery() State { return State{Kind: KindAwaitingSearchQuery} }
func AwaitingReplyTarget() State { return State{Kind: KindAwaitingReplyTarget} }

func AwaitingReplyBody(requestID uint) State {
	return State{Kind: KindAwaitingReplyBody, RequestID: requestID}
}

func (s State) IsIdle() bool {
	return s.Kind == KindIdle
}

// Valid rejects payloads on kinds that carry none and a missing id on reply bodies.
func (s State) Valid() bool {
	switch s.Kind {
	case KindIdle, KindAwaitingRequestBody, KindAwaitingBroadcastText, KindAwaitingSearchQuery, KindAwaitingReplyTarget:
		return s.RequestID == 0
	case KindAwaitingReplyBody:
		return s.RequestID != 0
	}
	return false
}

func (s State) String() string {
	switch s.Kind {
	case KindIdle:
		return "idle"
	case KindAwaitingReplyBody:
		return fmt.Sprintf("%s(#%d)", s.Kind, s.RequestID)
	}
	return string(s.Kind)
}
