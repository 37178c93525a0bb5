// Package audit appends immutable security events downstream of the auth
// core. Recording never fails the operation that triggered it: storage
// errors are logged and swallowed.
package audit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"financas.org/internal/auth"
	"financas.org/internal/ids"
)

// Actions recorded by the authentication flows.
const (
	ActionLoginSuccess = "auth.login.success"
	ActionLoginFailed  = "auth.login.failed"
	ActionLoginLocked  = "auth.login.locked"
	ActionRegister     = "auth.register"
	ActionRefresh      = "auth.refresh"
	ActionLogout       = "auth.logout"
	ActionAuditRead    = "audit.read"
	ActionUsersRead    = "users.read"
)

// Event is the fully-specified input for one audit record. Callers fill the
// struct in one place; there is no incremental builder state.
type Event struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	OldValue   string
	NewValue   string
	IPAddress  string
	UserAgent  string
}

// Recorder persists events through the auth audit store.
type Recorder struct {
	store auth.AuditStore
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder constructs a Recorder. A nil store turns Record into a no-op,
// which keeps handler wiring simple in tests.
func NewRecorder(store auth.AuditStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record appends one event. It never returns an error to the caller; audit
// failures must not abort the business operation that produced them.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.store == nil {
		return
	}
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		r.log.Warn("audit event dropped: action is required")
		return
	}
	rec := &auth.AuditEvent{
		ID:         ids.New(),
		UserID:     ev.UserID,
		Action:     action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		OldValue:   ev.OldValue,
		NewValue:   ev.NewValue,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Error("audit append failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
