// Package common defines shared constants and sentinel errors used across
// the clipboard server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorInvalidInput  = errors.New("invalid input")
	ErrVersionConflict = errors.New("version conflict")

	// Relay ticket errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
