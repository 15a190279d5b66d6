package tools

import "github.com/docuease/copilot/internal/policy"

// escalationFlags are argument keys that raise a request's effective risk
// to high when present and boolean true. The set is fixed; flags only ever
// raise risk, never lower it.
var escalationFlags = []string{
	"is_controlled",
	"critical_value",
	"emergency",
}

// EscalateRisk returns the effective risk level for a request: the tool's
// static level, raised to high when any escalation flag is set in args.
func EscalateRisk(static policy.RiskLevel, args map[string]any) policy.RiskLevel {
	for _, flag := range escalationFlags {
		if v, ok := args[flag].(bool); ok && v {
			return policy.RiskHigh
		}
	}
	return static
}
