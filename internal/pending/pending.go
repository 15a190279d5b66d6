// Package pending implements the pending-operation store: proposed
// side-effecting tool calls that await explicit user confirmation before
// execution. Ids are unguessable UUIDs, the expiry is computed once at
// creation and never extended, and consumption is a compare-and-swap on the
// confirmation status; exactly one confirmation attempt can ever succeed.
package pending

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("pending operation not found")
	ErrExpired         = errors.New("pending operation expired")
	ErrAlreadyResolved = errors.New("pending operation already resolved")
	ErrActorMismatch   = errors.New("pending operation belongs to a different actor")
)

// DefaultTTL is the fixed lifetime of a pending operation.
const DefaultTTL = time.Hour

// Status represents the confirmation state of a pending operation.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	default:
		return StatusExpired
	}
}

// Operation is one proposed, not-yet-executed side-effecting call.
type Operation struct {
	ID                string
	OperationType     string // Tool name; kept separate for audit correlation.
	ToolName          string
	ActorID           string
	PatientID         string
	Args              map[string]any
	RiskLevel         string
	EstimatedDuration string
	Status            Status
	ConfirmedBy       string
	ConfirmedAt       time.Time
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// CreateRequest carries the fields needed to propose an operation.
type CreateRequest struct {
	OperationType     string
	ToolName          string
	ActorID           string
	PatientID         string
	Args              map[string]any
	RiskLevel         string
	EstimatedDuration string
}

// Store is the persistence contract for pending operations.
// Implementations must enforce the state machine
//
//	pending -> approved | rejected | expired
//
// with exactly one transition per operation, and make ValidateAndConsume
// atomic per id (a conditional update keyed on status=pending).
// Operations are never deleted by the core; retention is a separate policy.
type Store interface {
	// Create persists a new pending operation with a fresh unguessable id
	// and expires_at = now + the store's fixed TTL.
	Create(ctx context.Context, req *CreateRequest) (*Operation, error)

	// Get returns the operation, marking it expired on access when past its
	// expiry. Read-only apart from that lazy transition.
	Get(ctx context.Context, id string) (*Operation, error)

	// ValidateAndConsume transitions a pending operation to approved on
	// behalf of actorID. It fails with ErrNotFound, ErrActorMismatch,
	// ErrAlreadyResolved, or ErrExpired; the caller treats all of these as
	// "invalid or expired". Exactly one concurrent call per id can succeed.
	ValidateAndConsume(ctx context.Context, id, actorID string) (*Operation, error)

	// Reject transitions a pending operation to rejected.
	Reject(ctx context.Context, id, actorID string) error

	// ExpireOld bulk-transitions pending operations past their expiry.
	ExpireOld(ctx context.Context) error

	// DeleteResolved removes resolved/expired operations older than the
	// given age. Retention policy only; never called by the orchestrator.
	DeleteResolved(ctx context.Context, olderThan time.Duration) error
}
