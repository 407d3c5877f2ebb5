package session

import (
	"context"

	errors "github.com/Laisky/errors/v2"
)

var ErrInvalidState = errors.New("invalid session state")

// Store holds one State per user. Get on an unknown user returns Idle.
// Set with an Idle state behaves like Clear.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, st State) error
	Clear(ctx context.Context, userID int64) error
}
