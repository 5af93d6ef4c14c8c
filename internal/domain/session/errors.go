package session

import "errors"

var (
	// ErrInvalidCredentials is the single user-facing login failure. The
	// remote cause is wrapped for logging but not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
