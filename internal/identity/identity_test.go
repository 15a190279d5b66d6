package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/docuease/copilot/internal/audit"
)

func TestStaticProvider_CurrentActor(t *testing.T) {
	p := NewStaticProvider()

	a, err := p.CurrentActor(context.Background())
	if err != nil {
		t.Fatalf("CurrentActor() error: %v", err)
	}
	if a.ID != DemoActorID {
		t.Errorf("CurrentActor().ID = %q, want %q", a.ID, DemoActorID)
	}
	if a.Role != RoleAdmin {
		t.Errorf("CurrentActor().Role = %q, want %q", a.Role, RoleAdmin)
	}
}

func TestStaticProvider_LookupReturnsCopy(t *testing.T) {
	p := NewStaticProvider()

	a, err := p.Lookup(context.Background(), DemoActorID)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	a.Role = RoleNurse

	b, err := p.Lookup(context.Background(), DemoActorID)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if b.Role != RoleAdmin {
		t.Errorf("stored actor mutated through returned copy: role = %q", b.Role)
	}
}

func TestStaticProvider_LookupUnknown(t *testing.T) {
	p := NewStaticProvider()

	if _, err := p.Lookup(context.Background(), "nobody"); !errors.Is(err, ErrNoActor) {
		t.Errorf("Lookup(nobody) error = %v, want ErrNoActor", err)
	}
}

func TestLogin_RecordsAuditEntry(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	p := NewStaticProvider().WithAudit(store)
	p.Add(&Actor{ID: "dr-chen", Role: RoleProvider, Email: "chen@emr.example", Active: true})

	a, err := p.Login(ctx, "dr-chen")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if a.ID != "dr-chen" {
		t.Errorf("Login().ID = %q, want dr-chen", a.ID)
	}

	cur, err := p.CurrentActor(ctx)
	if err != nil {
		t.Fatalf("CurrentActor() after login: %v", err)
	}
	if cur.ID != "dr-chen" {
		t.Errorf("current actor = %q, want dr-chen", cur.ID)
	}

	entries, err := store.Query(ctx, audit.Filter{Action: "user_login"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d user_login entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ActorID != "dr-chen" || e.ActorEmail != "chen@emr.example" {
		t.Errorf("entry actor = %q/%q", e.ActorID, e.ActorEmail)
	}
	if e.ResultStatus != audit.ResultSuccess {
		t.Errorf("entry status = %q, want success", e.ResultStatus)
	}
}

func TestLogin_UnknownActorAuditedAsFailure(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	p := NewStaticProvider().WithAudit(store)

	if _, err := p.Login(ctx, "nobody"); !errors.Is(err, ErrNoActor) {
		t.Fatalf("Login(nobody) error = %v, want ErrNoActor", err)
	}

	// Failed login must not change the current actor.
	cur, err := p.CurrentActor(ctx)
	if err != nil {
		t.Fatalf("CurrentActor() error: %v", err)
	}
	if cur.ID != DemoActorID {
		t.Errorf("current actor = %q, want %q", cur.ID, DemoActorID)
	}

	entries, err := store.Query(ctx, audit.Filter{Action: "user_login", ResultStatus: audit.ResultFailure})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d failed login entries, want 1", len(entries))
	}
}

func TestLogout_ClearsCurrentAndAudits(t *testing.T) {
	ctx := context.Background()
	store := audit.NewMemoryStore()
	p := NewStaticProvider().WithAudit(store)

	p.Logout(ctx)

	if _, err := p.CurrentActor(ctx); !errors.Is(err, ErrNoActor) {
		t.Errorf("CurrentActor() after logout error = %v, want ErrNoActor", err)
	}

	entries, err := store.Query(ctx, audit.Filter{Action: "user_logout"})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d user_logout entries, want 1", len(entries))
	}
	if entries[0].ActorID != DemoActorID {
		t.Errorf("logout entry actor = %q, want %q", entries[0].ActorID, DemoActorID)
	}
}
