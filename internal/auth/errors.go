// Package auth implements the anonymous-identity credential core: the
// bearer-token codec, the UUID pairing cache, display-id generation, and
// the keyed rate limiter.
package auth

import "errors"

// Error taxonomy surfaced by the protocol. Handlers map these to HTTP
// status codes at the boundary; downstream store failures are wrapped in
// ErrUnavailable with the cause retained for logs only.
var (
	ErrInvalidUUID     = errors.New("invalid UUID")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidUserID   = errors.New("invalid user ID")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrUnavailable     = errors.New("service unavailable")
)
