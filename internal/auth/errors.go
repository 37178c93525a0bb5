package auth

import "errors"

var (
	// ErrAuthentication is deliberately generic: it never reveals whether
	// the email or the password was wrong.
	ErrAuthentication = errors.New("auth: invalid credentials")
	// ErrAccountLocked is temporary; it clears once the lock window elapses.
	ErrAccountLocked = errors.New("auth: account temporarily locked")
	// ErrDuplicateEmail is returned by registration when the email is taken.
	ErrDuplicateEmail = errors.New("auth: email already in use")
	// ErrRefreshTokenInvalid covers unknown, revoked and expired ledger rows.
	ErrRefreshTokenInvalid = errors.New("auth: refresh token invalid")
	// ErrTokenMalformed covers parse and signature failures.
	ErrTokenMalformed = errors.New("auth: token malformed")
	// ErrTokenExpired is distinct from malformed so callers can tell a stale
	// credential from a forged one.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrPermissionDenied means a valid principal lacks the required authority.
	ErrPermissionDenied = errors.New("auth: permission denied")
	ErrNotFound         = errors.New("auth: not found")
)
