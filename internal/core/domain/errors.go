package domain

import "errors"

var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidTarget      = errors.New("owner access cannot be granted or revoked")
	ErrMisconfigured      = errors.New("identity provider credential not configured")

	// ErrProfileUnavailable marks a failed per-id directory lookup. It is
	// internal to the directory bridge: callers always receive a placeholder
	// profile instead, the error itself is only logged.
	ErrProfileUnavailable = errors.New("profile unavailable")
)
