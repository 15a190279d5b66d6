package pending

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager stores pending operations in memory.
// Thread-safe; the mutex around each transition gives the same
// one-winner semantics as the database CAS.
type Manager struct {
	mu     sync.Mutex
	ops    map[string]*Operation
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates an in-memory pending-operation store with the given TTL.
// A zero ttl falls back to DefaultTTL.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ops:    make(map[string]*Operation),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock overrides the time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Create(_ context.Context, req *CreateRequest) (*Operation, error) {
	now := m.now()
	op := &Operation{
		ID:                uuid.New().String(),
		OperationType:     req.OperationType,
		ToolName:          req.ToolName,
		ActorID:           req.ActorID,
		PatientID:         req.PatientID,
		Args:              req.Args,
		RiskLevel:         req.RiskLevel,
		EstimatedDuration: req.EstimatedDuration,
		Status:            StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(m.ttl),
	}

	m.mu.Lock()
	m.ops[op.ID] = op
	m.mu.Unlock()

	m.logger.Info("pending operation created",
		slog.String("operation_id", op.ID),
		slog.String("actor_id", op.ActorID),
		slog.String("tool", op.ToolName),
		slog.String("risk", op.RiskLevel),
	)

	cp := *op
	return &cp, nil
}

func (m *Manager) Get(_ context.Context, id string) (*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Lazy expiry on access.
	if op.Status == StatusPending && m.now().After(op.ExpiresAt) {
		op.Status = StatusExpired
	}
	cp := *op
	return &cp, nil
}

func (m *Manager) ValidateAndConsume(_ context.Context, id, actorID string) (*Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	if op.ActorID != actorID {
		return nil, ErrActorMismatch
	}
	if op.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	now := m.now()
	if now.After(op.ExpiresAt) {
		op.Status = StatusExpired
		return nil, ErrExpired
	}

	op.Status = StatusApproved
	op.ConfirmedBy = actorID
	op.ConfirmedAt = now

	m.logger.Info("pending operation consumed",
		slog.String("operation_id", id),
		slog.String("actor_id", actorID),
		slog.String("tool", op.ToolName),
	)

	cp := *op
	return &cp, nil
}

func (m *Manager) Reject(_ context.Context, id, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[id]
	if !ok {
		return ErrNotFound
	}
	if op.ActorID != actorID {
		return ErrActorMismatch
	}
	if op.Status != StatusPending {
		return ErrAlreadyResolved
	}
	now := m.now()
	if now.After(op.ExpiresAt) {
		op.Status = StatusExpired
		return ErrExpired
	}

	op.Status = StatusRejected
	op.ConfirmedBy = actorID
	op.ConfirmedAt = now
	return nil
}

func (m *Manager) ExpireOld(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, op := range m.ops {
		if op.Status == StatusPending && now.After(op.ExpiresAt) {
			op.Status = StatusExpired
		}
	}
	return nil
}

func (m *Manager) DeleteResolved(_ context.Context, olderThan time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	for id, op := range m.ops {
		if op.Status != StatusPending && op.CreatedAt.Before(cutoff) {
			delete(m.ops, id)
		}
	}
	return nil
}

// PendingCount reports operations still awaiting confirmation.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, op := range m.ops {
		if op.Status == StatusPending {
			n++
		}
	}
	return n
}
