package httpapi

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"financas.org/internal/audit"
	"financas.org/internal/auth"
	"financas.org/internal/ids"
)

// fakeStore is an in-memory auth.Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	now       func() time.Time
	users     map[string]*auth.User
	emails    map[string]string
	roles     map[string]*auth.Role
	userRoles map[string][]string
	rolePerms map[string][]string
	tokens    map[string]*auth.RefreshTokenRecord
	events    []*auth.AuditEvent
	appendErr error // injected Append failure
}

func newFakeStore(now func() time.Time) *fakeStore {
	s := &fakeStore{
		now:       now,
		users:     make(map[string]*auth.User),
		emails:    make(map[string]string),
		roles:     make(map[string]*auth.Role),
		userRoles: make(map[string][]string),
		rolePerms: make(map[string][]string),
		tokens:    make(map[string]*auth.RefreshTokenRecord),
	}
	s.roles[auth.RoleUser] = &auth.Role{ID: ids.New(), Name: auth.RoleUser, Active: true}
	s.roles[auth.RoleAdmin] = &auth.Role{ID: ids.New(), Name: auth.RoleAdmin, Active: true}
	s.rolePerms[auth.RoleUser] = []string{auth.PermClientRead, auth.PermTransactionRead}
	s.rolePerms[auth.RoleAdmin] = []string{auth.PermUserRead, auth.PermAuditRead}
	return s
}

func (s *fakeStore) Users(context.Context) auth.UserStore                 { return s }
func (s *fakeStore) Roles(context.Context) auth.RoleStore                 { return s }
func (s *fakeStore) RefreshTokens(context.Context) auth.RefreshTokenStore { return s }
func (s *fakeStore) Audit(context.Context) auth.AuditStore                { return s }

func (s *fakeStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context) ([]*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.User
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) CreateWithRole(_ context.Context, u *auth.User, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[u.Email]; exists {
		return auth.ErrDuplicateEmail
	}
	cp := *u
	cp.CreatedAt = s.now()
	s.users[cp.ID] = &cp
	s.emails[cp.Email] = cp.ID
	s.userRoles[cp.ID] = []string{roleName}
	return nil
}

func (s *fakeStore) RecordFailedLogin(_ context.Context, userID string, threshold int, lockFor time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= threshold {
		until := s.now().Add(lockFor)
		u.LockedUntil = &until
	}
	return nil
}

func (s *fakeStore) ResetLoginAttempts(_ context.Context, userID string, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &lastLogin
	return nil
}

func (s *fakeStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) AuthoritiesOf(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for _, roleName := range s.userRoles[userID] {
		add(roleName)
		for _, perm := range s.rolePerms[roleName] {
			add(perm)
		}
	}
	return out, nil
}

func (s *fakeStore) RoleNamesOf(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userRoles[userID]...), nil
}

func (s *fakeStore) AssignToUser(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, r := range s.roles {
		if r.ID == roleID {
			s.userRoles[userID] = append(s.userRoles[userID], name)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *fakeStore) SetPermissions(_ context.Context, roleID string, permissionNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, r := range s.roles {
		if r.ID == roleID {
			s.rolePerms[name] = append([]string(nil), permissionNames...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *fakeStore) Create(_ context.Context, rec *auth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.tokens[cp.Token] = &cp
	return nil
}

func (s *fakeStore) FindByToken(_ context.Context, token string) (*auth.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Revoke(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	if !ok || rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevokedAt = &at
	return nil
}

func (s *fakeStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.tokens {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			t := at
			rec.RevokedAt = &t
		}
	}
	return nil
}

func (s *fakeStore) PurgeExpired(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *fakeStore) Append(_ context.Context, ev *auth.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]*auth.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.AuditEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// grantRole attaches an extra role to a registered user.
func (s *fakeStore) grantRole(t *testing.T, email, roleName string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		t.Fatalf("unknown user %s", email)
	}
	if _, ok := s.roles[roleName]; !ok {
		t.Fatalf("unknown role %s", roleName)
	}
	s.userRoles[id] = append(s.userRoles[id], roleName)
}

func (s *fakeStore) actionsRecorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	handler http.Handler
	store   *fakeStore
	svc     *auth.Service
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Now().UTC()}
	store := newFakeStore(clock.Now)
	tokens, err := auth.NewTokenService("handler-test-secret", auth.WithTokenClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := auth.NewService(store, tokens, auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(ReadyProbe{}, "test", svc, store, audit.NewRecorder(store, nil))
	return &testEnv{handler: api.Handler(), store: store, svc: svc, clock: clock}
}
