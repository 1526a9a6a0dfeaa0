package auth

import (
	"errors"

	"github.com/vyrodovalexey/omnigw/internal/auth/token"
)

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates that no user has the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser indicates that the username is taken.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrHashing indicates that a password could not be hashed.
	ErrHashing = errors.New("password hashing failed")

	// ErrSessionNotFound indicates an unknown or expired session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable indicates that the session store could not be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrTokenInvalid indicates a malformed, unsigned or tampered token.
	ErrTokenInvalid = token.ErrInvalid

	// ErrTokenExpired indicates a correctly signed token past its expiry.
	ErrTokenExpired = token.ErrExpired

	// ErrSigning indicates a token could not be signed.
	ErrSigning = token.ErrSigning
)
