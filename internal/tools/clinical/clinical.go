// Package clinical implements the co-pilot's patient-facing tools:
// timeline retrieval, draft note creation, appointment scheduling, and
// medication updates. All side effects go through the emr.Store
// collaborator; nothing here talks to the confirmation workflow; the
// orchestrator gates execution before Execute is ever called.
package clinical

import "time"

// argument extraction helpers shared by the tool Validate/Execute methods.
// JSON-decoded args carry numbers as float64, so intArg accepts both.

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func optionalString(args map[string]any, key string) string {
	s, _ := stringArg(args, key)
	return s
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// clock indirection so tests can pin time-dependent output.
type clock func() time.Time

func realClock() time.Time { return time.Now().UTC() }
