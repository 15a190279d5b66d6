// Package policy implements attribute-based authorization with
// explicit-deny-wins combination and a default-deny fallback.
//
// Every authorization-sensitive branch in the system lives here: no other
// component may inspect actor roles or risk levels directly. Policies are
// declarative records; a matcher triple selects applicable policies, a
// predicate evaluates the actor/resource/context facts, and the combinator
// folds the produced decisions. Evaluation order never changes the outcome.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuease/copilot/internal/identity"
)

// Effect is a policy's contribution when it matches and its predicate holds.
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

// RiskLevel classifies the danger of an action.
type RiskLevel int

const (
	RiskLow RiskLevel = iota // Read-only, no authoritative side effects.
	RiskMedium               // Writes to scoped resources.
	RiskHigh                 // Medication changes and other high-stakes writes.
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseRiskLevel converts a string to a RiskLevel.
// Unrecognized values default to RiskHigh (default-deny principle).
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	default:
		return RiskHigh
	}
}

// Resource identifies what an action targets.
type Resource struct {
	Type             string // e.g. "Patient", "Medication"
	ID               string
	PrivacyLevel     string // "standard" or "vip" for Patient resources.
	AssignedProvider string
	CareTeam         []string
	IsControlled     bool // Medication resources only.
}

// Context carries call-time facts the predicates may consult.
type Context struct {
	ToolName  string
	RiskLevel RiskLevel
	ToolArgs  map[string]any
}

// Predicate evaluates the actor/resource/context facts for one policy.
// A nil predicate is treated as always true.
type Predicate func(actor *identity.Actor, resource *Resource, pctx *Context) bool

// PrincipalMatcher selects which actors a policy applies to.
// Nil field maps match everything (wildcard).
type PrincipalMatcher struct {
	Roles []identity.Role // Empty = any role.
	IDs   []string        // Empty = any id.
}

func (m PrincipalMatcher) matches(a *identity.Actor) bool {
	if len(m.Roles) > 0 && !containsRole(m.Roles, a.Role) {
		return false
	}
	if len(m.IDs) > 0 && !containsString(m.IDs, a.ID) {
		return false
	}
	return true
}

// ResourceMatcher selects which resources a policy applies to.
// An empty Type is the wildcard.
type ResourceMatcher struct {
	Type         string
	PrivacyLevel string // Empty = any.
}

func (m ResourceMatcher) matches(r *Resource) bool {
	if m.Type != "" && m.Type != r.Type {
		return false
	}
	if m.PrivacyLevel != "" && m.PrivacyLevel != r.PrivacyLevel {
		return false
	}
	return true
}

// Wildcard matches any action.
const Wildcard = "*"

// Policy is one named authorization rule. Static; policies are registered
// at construction and never mutated at runtime.
type Policy struct {
	ID        string
	Effect    Effect
	Principal PrincipalMatcher
	Actions   []string // Action names, or the single element Wildcard.
	Resource  ResourceMatcher
	When      Predicate
}

func (p *Policy) matchesAction(action string) bool {
	for _, a := range p.Actions {
		if a == action || a == Wildcard {
			return true
		}
	}
	return false
}

// Decision is the engine's verdict for one call.
type Decision struct {
	Effect  Effect
	Reasons []string
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool { return d.Effect == Allow }

// Engine evaluates a fixed policy set. Safe for concurrent use;
// the policy slice is never mutated after construction.
type Engine struct {
	policies []Policy
	logger   *slog.Logger
}

// NewEngine creates a policy engine over the given set.
func NewEngine(policies []Policy, logger *slog.Logger) *Engine {
	return &Engine{policies: policies, logger: logger}
}

// IsAuthorized evaluates every policy against (actor, action, resource, pctx)
// and combines the produced decisions: any Deny overrides all Allows; no
// decisions at all is a Deny. A panicking predicate is treated as a Deny with
// a diagnostic reason; evaluation failure never grants access.
func (e *Engine) IsAuthorized(ctx context.Context, actor *identity.Actor, action string, resource *Resource, pctx *Context) Decision {
	if actor == nil || resource == nil {
		return Decision{Effect: Deny, Reasons: []string{"missing actor or resource"}}
	}
	if pctx == nil {
		pctx = &Context{}
	}

	type produced struct {
		policyID string
		effect   Effect
	}

	var decisions []produced
	for i := range e.policies {
		p := &e.policies[i]
		if !p.Principal.matches(actor) || !p.matchesAction(action) || !p.Resource.matches(resource) {
			continue
		}
		holds, err := evaluate(p, actor, resource, pctx)
		if err != nil {
			// Fail secure: a broken predicate denies the whole call.
			e.logger.ErrorContext(ctx, "policy predicate failed",
				slog.String("policy", p.ID),
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
			return Decision{Effect: Deny, Reasons: []string{
				fmt.Sprintf("policy evaluation failed: %s", p.ID),
			}}
		}
		if holds {
			decisions = append(decisions, produced{policyID: p.ID, effect: p.Effect})
		}
	}

	var allows, denies []string
	for _, d := range decisions {
		reason := fmt.Sprintf("policy %s %ss access", d.policyID, lower(d.effect))
		if d.effect == Deny {
			denies = append(denies, reason)
		} else {
			allows = append(allows, reason)
		}
	}

	switch {
	case len(denies) > 0:
		return Decision{Effect: Deny, Reasons: denies}
	case len(allows) > 0:
		return Decision{Effect: Allow, Reasons: allows}
	default:
		return Decision{Effect: Deny, Reasons: []string{"no applicable policies - access denied by default"}}
	}
}

// evaluate runs the predicate, converting a panic into an error.
func evaluate(p *Policy, actor *identity.Actor, resource *Resource, pctx *Context) (holds bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			holds = false
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()
	if p.When == nil {
		return true, nil
	}
	return p.When(actor, resource, pctx), nil
}

func lower(e Effect) string {
	if e == Deny {
		return "deny"
	}
	return "allow"
}

func containsRole(rr []identity.Role, r identity.Role) bool {
	for _, x := range rr {
		if x == r {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
