package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages credential records. Lookups are by lowercased email.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)

	// CreateWithRole inserts the user and its default role edge in a single
	// transaction; a duplicate email leaves no partial row behind and
	// returns ErrDuplicateEmail.
	CreateWithRole(ctx context.Context, u *User, roleName string) error

	// RecordFailedLogin atomically advances the failure counter and sets
	// the lock expiry once the counter reaches threshold. Concurrent
	// failures must never lose an increment.
	RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) error

	// ResetLoginAttempts clears the counter and lock and stamps last_login.
	ResetLoginAttempts(ctx context.Context, userID string, lastLogin time.Time) error
}

// RoleStore reads the role/permission graph and maintains its edges. Every
// many-to-many edge is written by exactly one function here, both sides in
// one transaction, never by ad hoc mutation elsewhere.
type RoleStore interface {
	FindByName(ctx context.Context, name string) (*Role, error)

	// AuthoritiesOf returns the union of active role names and the names of
	// all permissions attached to those roles. Recomputed on every call so
	// revocation takes effect on the next request.
	AuthoritiesOf(ctx context.Context, userID string) ([]string, error)
	RoleNamesOf(ctx context.Context, userID string) ([]string, error)

	AssignToUser(ctx context.Context, userID, roleID string) error
	SetPermissions(ctx context.Context, roleID string, permissionNames []string) error
}

// RefreshTokenStore manages the refresh token ledger. Records are keyed by
// the opaque token value, which is unique system-wide.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error)

	// Revoke marks the record revoked and stamps revoked_at. Revoking an
	// unknown or already-revoked token is a no-op, not an error.
	Revoke(ctx context.Context, token string, at time.Time) error

	// RevokeAllForUser is a single bulk statement, not a per-row loop.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error

	// PurgeExpired removes rows whose expiry or revocation is older than
	// cutoff. Only the retention sweeper calls this.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditStore appends immutable events.
type AuditStore interface {
	Append(ctx context.Context, ev *AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]*AuditEvent, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
