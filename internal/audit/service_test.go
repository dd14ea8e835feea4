package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{Carrier: "twilio"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.Append(context.Background(), Event{
		Type:          EventTypeSIPEnsured,
		Carrier:       "twilio",
		IntegrationID: "int1",
		E164:          "+15550000001",
		Actions:       []string{"trunk.created", "rule.created"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be filled: %+v", evs[0])
	}
	if len(evs[0].Actions) != 2 {
		t.Fatalf("expected sub-actions preserved")
	}
}
