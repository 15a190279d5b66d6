// Package audit implements the append-only audit trail. Entries are written
// once and never updated or deleted; the Store interface has no mutation
// methods beyond Append, so immutability is enforced at the contract level.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result status values for an audit entry.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPending = "pending"
)

// Confirmation status values recorded on an entry.
const (
	ConfirmationAutoExecuted = "auto_executed"
	ConfirmationApproved     = "approved"
	ConfirmationRejected     = "rejected"
	ConfirmationPending      = "pending"
)

// Entry is one immutable record of an action attempt.
type Entry struct {
	ID uuid.UUID `json:"id"`

	// Actor: who. AgentID is set for AI-originated actions.
	ActorID    string `json:"actor_id,omitempty"`
	ActorEmail string `json:"actor_email,omitempty"`
	ActorRole  string `json:"actor_role,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`

	// Action: what.
	Action   string `json:"action"`
	ToolName string `json:"tool_name,omitempty"`

	// Scope: where.
	PatientID    string `json:"patient_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Input, PHI-minimized before logging.
	InputArguments map[string]any `json:"input_arguments,omitempty"`

	// Result.
	ResultStatus string         `json:"result_status"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	// Confirmation.
	ConfirmationStatus string `json:"confirmation_status,omitempty"`
	ConfirmedBy        string `json:"confirmed_by,omitempty"`

	// Timestamps.
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
}

// Filter selects entries for the audit query interface.
// Zero values mean "no constraint".
type Filter struct {
	Action       string
	ActorRole    string
	ResultStatus string
	From         time.Time
	To           time.Time
	Search       string // Free text over actor email and action name.
	Limit        int    // 0 = default 100.
}

// Appender is the write-side contract. This is all the orchestrator needs;
// keeping it narrow lets the JSONL file logger satisfy it without pretending
// to be queryable.
type Appender interface {
	// Append writes a single entry. Implementations assign Entry.ID when zero.
	Append(ctx context.Context, entry *Entry) error
}

// Store is the full persistence contract for audit entries.
// Append-only: there are no update or delete methods.
type Store interface {
	Appender

	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// Finalize stamps completion time and duration relative to RequestedAt.
func (e *Entry) Finalize(now time.Time) {
	done := now
	e.CompletedAt = &done
	if !e.RequestedAt.IsZero() {
		e.DurationMS = now.Sub(e.RequestedAt).Milliseconds()
	}
}

// Validate checks the minimal invariants before an append.
func (e *Entry) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("audit entry missing action")
	}
	if e.ResultStatus != ResultSuccess && e.ResultStatus != ResultFailure && e.ResultStatus != ResultPending {
		return fmt.Errorf("audit entry has invalid result status %q", e.ResultStatus)
	}
	return nil
}
