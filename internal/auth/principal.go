package auth

import "time"

// Principal is an authenticated user with its live authority set: the union
// of role names and the names of all permissions attached to those roles.
// It is a plain value, passed explicitly through the call chain; there is no
// ambient per-worker state to leak across requests.
type Principal struct {
	User        *User
	Authorities map[string]struct{}
}

// NewPrincipal constructs a principal from a resolved authority list.
func NewPrincipal(user *User, authorities []string) Principal {
	set := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		set[a] = struct{}{}
	}
	return Principal{User: user, Authorities: set}
}

// HasAuthority reports whether the principal carries the given role or
// permission name.
func (p Principal) HasAuthority(name string) bool {
	_, ok := p.Authorities[name]
	return ok
}

// HasRole is HasAuthority restricted by convention to ROLE_-style names.
func (p Principal) HasRole(name string) bool { return p.HasAuthority(name) }

// HasPermission is HasAuthority for permission names.
func (p Principal) HasPermission(name string) bool { return p.HasAuthority(name) }

// IsEnabled reports whether the underlying account is active.
func (p Principal) IsEnabled() bool {
	return p.User != nil && p.User.Enabled()
}

// IsLocked reports whether the account lockout window is open at now.
func (p Principal) IsLocked(now time.Time) bool {
	return p.User != nil && p.User.Locked(now)
}

// AuthorityNames returns the authority set as a slice, order unspecified.
func (p Principal) AuthorityNames() []string {
	out := make([]string, 0, len(p.Authorities))
	for a := range p.Authorities {
		out = append(out, a)
	}
	return out
}
