package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "financas"

	// TokenTypeAccess marks short-lived tokens presented on every request.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks the long-lived tokens persisted in the ledger.
	// A refresh token is a bearer secret equivalent in sensitivity to a
	// password and is never logged.
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds. Tokens encode only
// the subject identity; authorities are resolved fresh from the store on
// every request, never baked into the token.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256-signed tokens. It is a pure
// function of the token and the signing secret; it never consults storage.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTokenTTL overrides the access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTokenTTL overrides the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// NewTokenService constructs a TokenService. The secret is required; issuing
// and validating both fail without it.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs a short-lived access token for the subject email.
func (s *TokenService) IssueAccessToken(subject string) (string, time.Time, error) {
	return s.issue(subject, TokenTypeAccess, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the subject email.
// Persisting the value in the ledger is the orchestrator's responsibility.
func (s *TokenService) IssueRefreshToken(subject string) (string, time.Time, error) {
	return s.issue(subject, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(subject, tokenType string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAndValidate verifies the signature and required claims.
// Expiry is reported as ErrTokenExpired; every other failure (bad signature,
// parse error, wrong issuer, missing subject) is ErrTokenMalformed.
func (s *TokenService) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *TokenService) validateClaims(claims *Claims) error {
	if claims.Issuer != tokenIssuer {
		return ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrTokenMalformed
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrTokenMalformed
	}
	return nil
}
