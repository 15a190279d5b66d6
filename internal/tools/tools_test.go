package tools

import (
	"context"
	"testing"

	"github.com/docuease/copilot/internal/policy"
)

type stubTool struct {
	name string
	risk policy.RiskLevel
}

func (s *stubTool) Name() string                    { return s.name }
func (s *stubTool) Description() string             { return "stub" }
func (s *stubTool) InputSchema() map[string]any     { return map[string]any{"type": "object"} }
func (s *stubTool) RequiredAction() string          { return policy.ActionUseAIAgent }
func (s *stubTool) RiskLevel() policy.RiskLevel     { return s.risk }
func (s *stubTool) ConfirmationRequired() bool      { return false }
func (s *stubTool) EstimatedDuration() string       { return "<1s" }
func (s *stubTool) Validate(map[string]any) error   { return nil }
func (s *stubTool) Execute(context.Context, map[string]any) (*Result, error) {
	return &Result{Summary: "ok"}, nil
}

func TestRegistry_GetAndList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "a"})
	reg.Register(&stubTool{name: "b"})

	if got := reg.Get("a"); got == nil {
		t.Fatal("Get(a) = nil, want tool")
	}
	if got := reg.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
	if got := len(reg.List()); got != 2 {
		t.Errorf("len(List()) = %d, want 2", got)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "a"})

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	reg.Register(&stubTool{name: "a"})
}

func TestEscalateRisk(t *testing.T) {
	tests := []struct {
		name   string
		static policy.RiskLevel
		args   map[string]any
		want   policy.RiskLevel
	}{
		{"no flags", policy.RiskLow, map[string]any{"patient_id": "p1"}, policy.RiskLow},
		{"is_controlled", policy.RiskLow, map[string]any{"is_controlled": true}, policy.RiskHigh},
		{"critical_value", policy.RiskMedium, map[string]any{"critical_value": true}, policy.RiskHigh},
		{"emergency", policy.RiskLow, map[string]any{"emergency": true}, policy.RiskHigh},
		{"flag false", policy.RiskLow, map[string]any{"is_controlled": false}, policy.RiskLow},
		{"flag wrong type", policy.RiskLow, map[string]any{"emergency": "yes"}, policy.RiskLow},
		{"never lowers", policy.RiskHigh, map[string]any{}, policy.RiskHigh},
		{"unrelated flag", policy.RiskLow, map[string]any{"urgent": true}, policy.RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscalateRisk(tt.static, tt.args); got != tt.want {
				t.Errorf("EscalateRisk(%v, %v) = %v, want %v", tt.static, tt.args, got, tt.want)
			}
		})
	}
}

// Escalation is monotonic: for any args, the effective level is never
// below the static level.
func TestEscalateRisk_Monotonic(t *testing.T) {
	argSets := []map[string]any{
		{},
		{"is_controlled": true},
		{"is_controlled": false, "emergency": true},
		{"critical_value": true, "emergency": false},
	}
	for _, static := range []policy.RiskLevel{policy.RiskLow, policy.RiskMedium, policy.RiskHigh} {
		for _, args := range argSets {
			if got := EscalateRisk(static, args); got < static {
				t.Errorf("EscalateRisk(%v, %v) = %v, below static level", static, args, got)
			}
		}
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(&stubTool{name: "a", risk: policy.RiskMedium})
	if d.Name != "a" {
		t.Errorf("Name = %q, want %q", d.Name, "a")
	}
	if d.RiskLevel != "medium" {
		t.Errorf("RiskLevel = %q, want %q", d.RiskLevel, "medium")
	}
	if d.ConfirmationRequired {
		t.Error("ConfirmationRequired = true, want false")
	}
}

func TestActorIDContext(t *testing.T) {
	ctx := ContextWithActorID(context.Background(), "user-1")
	if got := ActorIDFromContext(ctx); got != "user-1" {
		t.Errorf("ActorIDFromContext = %q, want %q", got, "user-1")
	}
	if got := ActorIDFromContext(context.Background()); got != "" {
		t.Errorf("ActorIDFromContext(empty) = %q, want empty", got)
	}
}
