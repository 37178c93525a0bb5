package auth

import "time"

// User represents an account able to authenticate against the API.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Active        bool
	EmailVerified bool
	LoginAttempts int
	LockedUntil   *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked reports whether the account lockout window is still open at now.
// An elapsed window means the account is usable again; no explicit unlock
// is ever required.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Enabled reports whether the account may authenticate at all.
func (u *User) Enabled() bool {
	return u.Active
}

// Role groups permissions under a name such as ROLE_USER.
type Role struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is a fine-grained capability scoped to a resource and action.
type Permission struct {
	ID        string
	Name      string
	Resource  string
	Action    string
	CreatedAt time.Time
}

// RefreshTokenRecord is the persisted ledger row for one issued refresh token.
// Once revoked a record never becomes valid again; rows are removed only by
// the retention sweeper, never by request-path logic.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	Token      string
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
}

// Valid reports whether the record may still be exchanged for access tokens.
// The stored expiry is authoritative, independent of any expiry encoded in
// the token string itself.
func (r *RefreshTokenRecord) Valid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// AuditEvent is one append-only security event. Immutable after creation.
type AuditEvent struct {
	ID         string
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	OldValue   string
	NewValue   string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// ClientMeta carries per-request device and network metadata recorded on the
// refresh token ledger and in audit events.
type ClientMeta struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}
