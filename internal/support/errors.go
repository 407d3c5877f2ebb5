package support

import (
	"fmt"
	"strconv"
	"strings"

	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/storage"

	errors "github.com/Laisky/errors/v2"
)

var (
	ErrNotEligible = errors.New("user has not joined the required channels")

	// validation errors; errors.Is(err, storage.ErrValidation) holds for all of them
	ErrBodyTooShort = errors.Wrap(storage.ErrValidation, "request body too short")
	ErrBodyTooLong  = errors.Wrap(storage.ErrValidation, "request body too long")
	ErrInvalidID    = errors.Wrap(storage.ErrValidation, "invalid id")
	ErrEmptyText    = errors.Wrap(storage.ErrValidation, "empty text")

	ErrDelivery       = errors.New("message not delivered")
	ErrOwnerImmutable = errors.New("the owner cannot be changed")

	ErrRequestNotFound = storage.ErrRequestNotFound
)

// TransitionError is returned by SetStatus when the request may not move to the target status.
type TransitionError struct {
	RequestID uint
	From      models.RequestStatus
	To        models.RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %d cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return storage.ErrInvalidTransition }

// AsTransitionError extracts a TransitionError from the chain.
func AsTransitionError(err error) (*TransitionError, bool) {
	var typed *TransitionError
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// ParseRequestID accepts "15" and "#15".
func ParseRequestID(raw string) (uint, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(ErrInvalidID, "request id %q", raw)
	}
	return uint(id), nil
}

func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrInvalidID, "user id %q", raw)
	}
	return id, nil
}
