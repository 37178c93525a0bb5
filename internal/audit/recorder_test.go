package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"financas.org/internal/auth"
)

type stubAuditStore struct {
	mu        sync.Mutex
	events    []*auth.AuditEvent
	appendErr error
}

func (s *stubAuditStore) Append(_ context.Context, ev *auth.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

func (s *stubAuditStore) ListRecent(context.Context, int) ([]*auth.AuditEvent, error) {
	return nil, nil
}

func (s *stubAuditStore) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestRecordAppendsEvent(t *testing.T) {
	store := &stubAuditStore{}
	rec := NewRecorder(store, zap.NewNop())

	rec.Record(context.Background(), Event{
		UserID:    "alice@example.com",
		Action:    ActionLoginSuccess,
		IPAddress: "127.0.0.1",
	})

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.ID == "" {
		t.Fatal("expected generated event id")
	}
	if ev.Action != ActionLoginSuccess || ev.UserID != "alice@example.com" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.CreatedAt.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &stubAuditStore{appendErr: errors.New("disk full")}
	rec := NewRecorder(store, zap.NewNop())

	// Must not panic and must not propagate the error anywhere.
	rec.Record(context.Background(), Event{Action: ActionLogout})

	if len(store.events) != 0 {
		t.Fatalf("expected no stored events, got %d", len(store.events))
	}
}

func TestRecordDropsEmptyAction(t *testing.T) {
	store := &stubAuditStore{}
	rec := NewRecorder(store, zap.NewNop())

	rec.Record(context.Background(), Event{UserID: "alice@example.com", Action: "   "})

	if len(store.events) != 0 {
		t.Fatalf("expected empty action dropped, got %d events", len(store.events))
	}
}

func TestRecordWithNilStoreIsNoop(t *testing.T) {
	rec := NewRecorder(nil, nil)
	rec.Record(context.Background(), Event{Action: ActionRefresh})

	var nilRec *Recorder
	nilRec.Record(context.Background(), Event{Action: ActionRefresh})
}
