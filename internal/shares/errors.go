package shares

import "errors"

var (
	// ErrInvalidInput marks client-correctable validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means no share exists for the given id.
	ErrNotFound = errors.New("share not found")
	// ErrExpired means the share exists but its expiry has passed.
	ErrExpired = errors.New("share expired")
	// ErrUnauthorized means the supplied password did not match.
	ErrUnauthorized = errors.New("invalid password")
	// ErrConflict means a share with the same id already exists.
	ErrConflict = errors.New("share id already exists")
)
