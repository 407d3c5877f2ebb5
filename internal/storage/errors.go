package storage

import errors "github.com/Laisky/errors/v2"

var (
	// ErrValidation is returned for input rejected before anything is written.
	ErrValidation        = errors.New("validation failed")
	ErrRequestNotFound   = errors.New("request not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)
