package httpapi

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"financas.org/internal/audit"
	"financas.org/internal/auth"
	"financas.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Roles        []string `json:"roles"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func sessionPayload(s auth.Session) sessionResponse {
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		Email:        s.Email,
		Name:         s.Name,
		Roles:        roles,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateEmail(req.Email); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	meta := clientMeta(r)
	session, err := a.auth.Login(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		a.rejectLogin(w, r, req.Email, meta, err)
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		UserID:    session.Email,
		Action:    audit.ActionLoginSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if msg := validateEmail(req.Email); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	if len(req.Password) < 6 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	meta := clientMeta(r)
	session, err := a.auth.Register(r.Context(), req.Name, req.Email, req.Password, meta)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			writeError(w, r, http.StatusBadRequest, "email already in use")
			return
		}
		a.internalError(w, r, "register", err)
		return
	}

	a.recorder.Record(r.Context(), audit.Event{
		UserID:    session.Email,
		Action:    audit.ActionRegister,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	session, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenInvalid) {
			writeError(w, r, http.StatusUnauthorized, "refresh token invalid or expired")
			return
		}
		a.internalError(w, r, "refresh", err)
		return
	}

	meta := clientMeta(r)
	a.recorder.Record(r.Context(), audit.Event{
		UserID:    session.Email,
		Action:    audit.ActionRefresh,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Idempotent: revoking an unknown or already-revoked token succeeds.
	if err := a.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		a.internalError(w, r, "logout", err)
		return
	}

	meta := clientMeta(r)
	a.recorder.Record(r.Context(), audit.Event{
		Action:    audit.ActionLogout,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// rejectLogin maps authentication failures to responses without revealing
// which check failed beyond the recoverable lockout hint.
func (a *API) rejectLogin(w http.ResponseWriter, r *http.Request, email string, meta auth.ClientMeta, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		obs.CountAccountLockout()
		a.recorder.Record(r.Context(), audit.Event{
			UserID:    auth.NormalizeEmail(email),
			Action:    audit.ActionLoginLocked,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		// Recoverable: the client may retry once the window elapses.
		writeError(w, r, http.StatusUnauthorized, "account temporarily locked, try again later")
	case errors.Is(err, auth.ErrAuthentication):
		obs.CountLoginFailure()
		a.recorder.Record(r.Context(), audit.Event{
			UserID:    auth.NormalizeEmail(email),
			Action:    audit.ActionLoginFailed,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		a.internalError(w, r, "login", err)
	}
}

// internalError logs full detail and answers with a generic 500.
func (a *API) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	obs.Logger().Error("auth operation failed",
		zap.String("op", op),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "email is invalid"
	}
	return ""
}

func clientMeta(r *http.Request) auth.ClientMeta {
	return auth.ClientMeta{
		DeviceInfo: r.UserAgent(),
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}
