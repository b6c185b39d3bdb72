package messaging

import "errors"

var (
	// ErrUnauthorized means the two users share no appointment, or the
	// relationship could not be verified. The gate fails closed: an oracle
	// failure is indistinguishable from a denial.
	ErrUnauthorized = errors.New("users are not authorized to message each other")

	ErrEmptyText          = errors.New("message text must not be empty")
	ErrInvalidParticipant = errors.New("invalid participant id")
	ErrUserNotFound       = errors.New("user not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotReceiver        = errors.New("only the receiver may mark a message read")
)
