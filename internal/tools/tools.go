// Package tools defines the clinical tool interface and registry.
// Each tool declares its policy action, static risk level, and whether
// execution must go through the confirmation workflow, so the
// orchestrator can enforce authorization and confirmation uniformly.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docuease/copilot/internal/policy"
)

// Tool is the interface all clinical tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "get_patient_timeline").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's arguments.
	// Sent to LLM providers and MCP clients as the tool's input_schema.
	InputSchema() map[string]any

	// RequiredAction returns the policy action this tool needs.
	// The orchestrator uses this for the authorization check before execution.
	RequiredAction() string

	// RiskLevel returns the tool's static risk classification.
	// The effective level may be escalated per-request based on arguments.
	RiskLevel() policy.RiskLevel

	// ConfirmationRequired reports whether execution must be approved
	// through the two-phase confirmation workflow.
	ConfirmationRequired() bool

	// EstimatedDuration returns a display string shown to the confirming
	// user (e.g. "<2s").
	EstimatedDuration() string

	// Validate checks that args are well-formed before any authorization
	// checks run, so malformed requests fail fast without touching the
	// pending store or policy engine.
	Validate(args map[string]any) error

	// Execute runs the tool with validated arguments.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	Summary string         `json:"summary"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ArgumentError reports which argument fields were missing or invalid.
// Returned by Validate so callers can surface the violated fields.
type ArgumentError struct {
	Tool   string
	Fields []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Fields, ", "))
}

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const actorIDKey contextKey = iota

// ContextWithActorID returns a new context carrying the acting user's ID.
// Used by the orchestrator so tool side effects can record who asked.
func ContextWithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ActorIDFromContext extracts the actor ID from context, or "" if not set.
func ActorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		return v
	}
	return ""
}

// Descriptor is the static, serializable view of a tool used by the
// HTTP listing endpoint and confirmation responses.
type Descriptor struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	RiskLevel            string         `json:"risk_level"`
	ConfirmationRequired bool           `json:"confirmation_required"`
	EstimatedDuration    string         `json:"estimated_duration"`
	InputSchema          map[string]any `json:"input_schema"`
}

// Describe builds the descriptor for a tool.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:                 t.Name(),
		Description:          t.Description(),
		RiskLevel:            t.RiskLevel().String(),
		ConfirmationRequired: t.ConfirmationRequired(),
		EstimatedDuration:    t.EstimatedDuration(),
		InputSchema:          t.InputSchema(),
	}
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// All returns all registered tools.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}
