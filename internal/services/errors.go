// Package services defines the business logic for direct messages: sending,
// delivery and read acknowledgements, recall, and the read-side queries.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into failure frames or HTTP status codes is performed by the
// realtime and handler layers.
package services

import "errors"

var (
	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not visible to the current user.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbidden is returned when the caller is not the participant allowed
	// to perform the operation (only the receiver may mark read, only the
	// sender may recall).
	ErrForbidden = errors.New("operation not permitted for this user")

	// ErrRecallWindowExpired is returned when a recall arrives after the
	// recall window has elapsed since the message was created.
	ErrRecallWindowExpired = errors.New("recall window expired")

	// ErrEmptyContent is returned when a message body is empty after trimming.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a message body exceeds the configured
	// maximum number of runes.
	ErrTooLong = errors.New("content too long")

	// ErrInvalidReceiver is returned when the receiver id is missing or malformed.
	ErrInvalidReceiver = errors.New("invalid receiver")

	// ErrInvalidType is returned for an unknown message type.
	ErrInvalidType = errors.New("invalid message type")
)
