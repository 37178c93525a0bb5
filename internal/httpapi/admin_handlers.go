package httpapi

import (
	"net/http"
	"sort"
	"time"

	"financas.org/internal/audit"
	"financas.org/internal/auth"
)

type principalResponse struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Active      bool     `json:"active"`
	Authorities []string `json:"authorities"`
}

type userSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Active        bool       `json:"active"`
	LoginAttempts int        `json:"loginAttempts"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type auditEventResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// handleMe returns the request principal with its live authority set. It
// doubles as the reference for how protected business handlers consume the
// authorization resolver output.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	authorities := principal.AuthorityNames()
	sort.Strings(authorities)
	writeJSON(w, http.StatusOK, principalResponse{
		Email:       principal.User.Email,
		Name:        principal.User.Name,
		Active:      principal.User.Active,
		Authorities: authorities,
	})
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events, err := a.store.Audit(r.Context()).ListRecent(r.Context(), limit)
	if err != nil {
		a.internalError(w, r, "audit.list", err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	a.recorder.Record(r.Context(), audit.Event{
		UserID:    principal.User.Email,
		Action:    audit.ActionAuditRead,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})

	items := make([]auditEventResponse, 0, len(events))
	for _, ev := range events {
		items = append(items, auditEventResponse{
			ID:         ev.ID,
			UserID:     ev.UserID,
			Action:     ev.Action,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			IPAddress:  ev.IPAddress,
			UserAgent:  ev.UserAgent,
			CreatedAt:  ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.store.Users(r.Context()).List(r.Context())
	if err != nil {
		a.internalError(w, r, "users.list", err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	a.recorder.Record(r.Context(), audit.Event{
		UserID:    principal.User.Email,
		Action:    audit.ActionUsersRead,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})

	items := make([]userSummary, 0, len(users))
	for _, u := range users {
		items = append(items, userSummary{
			ID:            u.ID,
			Name:          u.Name,
			Email:         u.Email,
			Active:        u.Active,
			LoginAttempts: u.LoginAttempts,
			LockedUntil:   u.LockedUntil,
			LastLogin:     u.LastLogin,
			CreatedAt:     u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
