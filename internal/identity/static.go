package identity

import (
	"context"
	"sync"
	"time"

	"github.com/docuease/copilot/internal/audit"
)

// DemoActorID is the fixed actor id used when a request omits user_id.
const DemoActorID = "demo-user-123"

// StaticProvider serves actors from a fixed in-memory set. It is the demo
// identity backend and the test double for the Provider interface.
type StaticProvider struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	current string
	auditor audit.Appender
}

// NewStaticProvider creates a provider seeded with the demo admin account.
func NewStaticProvider() *StaticProvider {
	demo := &Actor{
		ID:            DemoActorID,
		Role:          RoleAdmin,
		Email:         "demo@emr.example",
		Name:          "Dr. Demo User",
		Active:        true,
		LicenseNumber: "admin",
	}
	return &StaticProvider{
		actors:  map[string]*Actor{demo.ID: demo},
		current: demo.ID,
	}
}

// Add registers an actor. Later Adds with the same id replace the entry.
func (p *StaticProvider) Add(a *Actor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *a
	p.actors[a.ID] = &cp
}

// WithAudit attaches an appender so Login and Logout leave audit entries.
func (p *StaticProvider) WithAudit(a audit.Appender) *StaticProvider {
	p.auditor = a
	return p
}

// Login selects the actor as current and records a user_login audit entry.
func (p *StaticProvider) Login(ctx context.Context, id string) (*Actor, error) {
	p.mu.Lock()
	a, ok := p.actors[id]
	if ok {
		p.current = id
	}
	p.mu.Unlock()
	if !ok {
		p.appendSession(ctx, "user_login", id, nil, audit.ResultFailure)
		return nil, ErrNoActor
	}
	cp := *a
	p.appendSession(ctx, "user_login", id, &cp, audit.ResultSuccess)
	return &cp, nil
}

// Logout clears the current actor and records a user_logout audit entry.
func (p *StaticProvider) Logout(ctx context.Context) {
	p.mu.Lock()
	a := p.actors[p.current]
	id := p.current
	p.current = ""
	p.mu.Unlock()
	p.appendSession(ctx, "user_logout", id, a, audit.ResultSuccess)
}

func (p *StaticProvider) appendSession(ctx context.Context, action, id string, a *Actor, status string) {
	if p.auditor == nil {
		return
	}
	entry := &audit.Entry{
		ActorID:      id,
		Action:       action,
		ResultStatus: status,
		RequestedAt:  time.Now().UTC(),
	}
	if a != nil {
		entry.ActorEmail = a.Email
		entry.ActorRole = string(a.Role)
	}
	entry.Finalize(time.Now().UTC())
	_ = p.auditor.Append(ctx, entry)
}

// SetCurrent selects which actor CurrentActor returns.
func (p *StaticProvider) SetCurrent(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = id
}

func (p *StaticProvider) CurrentActor(_ context.Context) (*Actor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.actors[p.current]
	if !ok {
		return nil, ErrNoActor
	}
	cp := *a
	return &cp, nil
}

func (p *StaticProvider) Lookup(_ context.Context, id string) (*Actor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.actors[id]
	if !ok {
		return nil, ErrNoActor
	}
	cp := *a
	return &cp, nil
}
