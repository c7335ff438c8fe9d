// Package services defines the business logic for conversations, messages,
// blocks and partner discovery. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Conversation and message errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or the current user is not one of its participants.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when message content is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when message content exceeds the configured
	// maximum length in runes.
	ErrTooLong = errors.New("message too long")

	// ErrBlocked is returned when either participant blocked the other.
	ErrBlocked = errors.New("conversation partner is blocked")

	// ErrIdempotencyConflict is returned when a concurrent attempt claimed
	// the idempotency key but its result can no longer be read.
	ErrIdempotencyConflict = errors.New("idempotency key in use")
)

// Partner and block errors.
var (
	// ErrPartnerNotFound indicates that no profile exists for the partner id.
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrSelfAction is returned when a user targets themselves (blocking
	// or starting a conversation with their own id).
	ErrSelfAction = errors.New("cannot target yourself")

	// ErrAlreadyBlocked is returned when the block already exists.
	ErrAlreadyBlocked = errors.New("partner already blocked")

	// ErrNotBlocked is returned when removing a block that does not exist.
	ErrNotBlocked = errors.New("partner is not blocked")

	// ErrInvalidLocation is returned for coordinates outside WGS84 bounds.
	ErrInvalidLocation = errors.New("invalid location")
)
