// Package redact decides which field names carry sensitive data and masks
// their values. The audit log and the log handler share these rules.
package redact

import "strings"

const Marker = "[REDACTED]"

var sensitivePatterns = []string{
	"password", "passwd", "token", "secret", "key",
	"identity", "idnumber", "nationalid",
	"phone", "address", "email", "dob", "dateofbirth",
	"fullname", "nextofkin", "guarantor", "photo",
	"encrypted", "ciphertext", "hash",
}

// Names that match a pattern but hold no PII.
var allowed = map[string]struct{}{
	"idempotencykey": {},
	"keyversion":     {},
	"ipaddress":      {},
}

func normalize(name string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "", ".", "").Replace(strings.ToLower(name))
}

func IsSensitive(name string) bool {
	n := normalize(name)
	if _, ok := allowed[n]; ok {
		return false
	}
	if strings.HasSuffix(n, "enc") {
		return true
	}
	for _, p := range sensitivePatterns {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// Value walks nested maps and slices, masking values stored under sensitive keys.
func Value(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			if IsSensitive(k) {
				out[k] = Marker
				continue
			}
			out[k] = Value(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, Value(item))
		}
		return out
	default:
		return v
	}
}
