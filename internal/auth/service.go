package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"financas.org/internal/ids"
)

const (
	// DefaultRole is assigned to every newly registered user.
	DefaultRole = "ROLE_USER"

	defaultMaxLoginAttempts = 5
	defaultLockDuration     = 30 * time.Minute
)

// Service is the authentication orchestrator: it owns the lockout policy and
// composes the token service, the credential store and the refresh ledger.
type Service struct {
	store  Store
	tokens *TokenService
	now    func() time.Time

	maxLoginAttempts int
	lockDuration     time.Duration
	defaultRole      string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMaxLoginAttempts sets the failure threshold that triggers a lockout.
func WithMaxLoginAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxLoginAttempts = n
		}
	}
}

// WithLockDuration sets how long a lockout lasts.
func WithLockDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.lockDuration = d
		}
	}
}

// WithDefaultRole overrides the role granted at registration.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.defaultRole = name
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		store:            store,
		tokens:           tokens,
		now:              time.Now,
		maxLoginAttempts: defaultMaxLoginAttempts,
		lockDuration:     defaultLockDuration,
		defaultRole:      DefaultRole,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Session is the result of a successful login, registration or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in milliseconds.
	ExpiresIn int64
	Email     string
	Name      string
	Roles     []string
}

// Login authenticates credentials and issues a fresh token pair.
//
// The lock check runs before password verification on purpose: a locked
// account answers identically for right and wrong passwords, so the lock
// never leaks whether the password was correct.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrAuthentication
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrAuthentication
		}
		return Session{}, err
	}
	if !user.Enabled() {
		return Session{}, ErrAuthentication
	}
	now := s.now().UTC()
	if user.Locked(now) {
		return Session{}, ErrAccountLocked
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if ferr := s.store.Users(ctx).RecordFailedLogin(ctx, user.ID, s.maxLoginAttempts, s.lockDuration); ferr != nil {
			return Session{}, ferr
		}
		return Session{}, ErrAuthentication
	}
	if err := s.store.Users(ctx).ResetLoginAttempts(ctx, user.ID, now); err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, user, meta)
}

// Register creates a user with the default role and behaves as a successful
// login. A duplicate email fails with ErrDuplicateEmail and creates nothing.
func (s *Service) Register(ctx context.Context, name, email, password string, meta ClientMeta) (Session, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return Session{}, ErrAuthentication
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	user := &User{
		ID:            ids.New(),
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
	}
	if err := s.store.Users(ctx).CreateWithRole(ctx, user, s.defaultRole); err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, user, meta)
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is NOT rotated: the same value stays valid until its
// own expiry or an explicit logout. Dependent clients rely on that
// stability, so rotation here would be a behavior change, not a fix.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.tokens.ParseAndValidate(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return Session{}, ErrRefreshTokenInvalid
	}
	rec, err := s.store.RefreshTokens(ctx).FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrRefreshTokenInvalid
		}
		return Session{}, err
	}
	// Ledger state is authoritative over anything encoded in the token.
	if !rec.Valid(s.now().UTC()) {
		return Session{}, ErrRefreshTokenInvalid
	}
	user, err := s.store.Users(ctx).Find(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrRefreshTokenInvalid
		}
		return Session{}, err
	}
	if !user.Enabled() {
		return Session{}, ErrRefreshTokenInvalid
	}
	accessToken, _, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		return Session{}, err
	}
	roles, err := s.store.Roles(ctx).RoleNamesOf(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.AccessTTL().Milliseconds(),
		Email:        user.Email,
		Name:         user.Name,
		Roles:        sortedRoles(roles),
	}, nil
}

// Logout revokes the ledger record for the given refresh token. Unknown and
// already-revoked tokens are a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.store.RefreshTokens(ctx).Revoke(ctx, refreshToken, s.now().UTC())
}

// RevokeAll invalidates every refresh token of a user in one bulk statement.
// Needed by password-change flows that live outside this core.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID, s.now().UTC())
}

// PrincipalByEmail resolves a principal and its live authority set. The
// role/permission graph is re-read on every call so a revoked role takes
// effect on the very next request without token invalidation.
func (s *Service) PrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Principal{}, err
	}
	authorities, err := s.store.Roles(ctx).AuthoritiesOf(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, authorities), nil
}

// AuthenticateToken validates an access token and resolves its principal
// fresh from the store, never trusting a cached role set.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.ParseAndValidate(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != TokenTypeAccess {
		return Principal{}, ErrTokenMalformed
	}
	principal, err := s.PrincipalByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrTokenMalformed
		}
		return Principal{}, err
	}
	if !principal.IsEnabled() {
		return Principal{}, ErrTokenMalformed
	}
	return principal, nil
}

// Require ensures the context principal carries an authority.
func (s *Service) Require(ctx context.Context, authority string) (Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrAuthentication
	}
	if !principal.HasAuthority(authority) {
		return Principal{}, ErrPermissionDenied
	}
	return principal, nil
}

func (s *Service) openSession(ctx context.Context, user *User, meta ClientMeta) (Session, error) {
	accessToken, _, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		return Session{}, err
	}
	refreshToken, refreshExp, err := s.tokens.IssueRefreshToken(user.Email)
	if err != nil {
		return Session{}, err
	}
	rec := &RefreshTokenRecord{
		ID:         ids.New(),
		UserID:     user.ID,
		Token:      refreshToken,
		ExpiresAt:  refreshExp,
		DeviceInfo: meta.DeviceInfo,
		IPAddress:  meta.IPAddress,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return Session{}, err
	}
	roles, err := s.store.Roles(ctx).RoleNamesOf(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.AccessTTL().Milliseconds(),
		Email:        user.Email,
		Name:         user.Name,
		Roles:        sortedRoles(roles),
	}, nil
}

// NormalizeEmail lowercases and trims an email; the column is unique on the
// normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortedRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
