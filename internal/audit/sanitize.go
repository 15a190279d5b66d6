package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// phiFields enumerates the argument keys treated as protected health
// information. Values under these keys are hashed before logging; nested
// objects are replaced with a marker.
var phiFields = []string{
	"first_name", "last_name", "name",
	"email", "phone", "ssn",
	"address", "street", "medical_record_number",
}

// MinimizePHI returns a copy of args with known PHI fields hashed.
// The original map is never mutated.
func MinimizePHI(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	sanitized := make(map[string]any, len(args))
	for k, v := range args {
		sanitized[k] = v
	}
	for _, field := range phiFields {
		v, ok := sanitized[field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			sanitized[field] = HashPII(val)
		case map[string]any:
			sanitized[field] = "[object_provided]"
		}
	}
	return sanitized
}

// HashPII produces an irreversible fingerprint of a PII value, keeping the
// length so reviewers can still distinguish empty from populated fields.
func HashPII(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("hash_%s_%dchars", hex.EncodeToString(sum[:6]), len(value))
}
