// internal/agent/signature.go
package agent

import "strings"

// SignatureInvalid is the sentinel for malformed actions. It still
// participates in ban-listing so a degenerate proposal cannot loop forever.
const SignatureInvalid = "invalid"

// signatureValueLimit bounds each field value inside a signature so long
// free-text fills still collide with their retries.
const signatureValueLimit = 80

// signatureFields are the discriminating fields, in the fixed order they are
// emitted. Two actions with identical type+selector+text+key always collide,
// even across different steps; that collision is what makes permanent
// banning possible.
var signatureFields = []string{"key", "selector", "text"}

// Signature derives the stable string identity of an action. Deterministic
// and total: every well-formed action maps to a non-empty string, malformed
// actions map to SignatureInvalid. The result is opaque; it is compared for
// equality and never parsed back.
func Signature(a Action) string {
	if a.Type == "" {
		return SignatureInvalid
	}

	values := map[string]string{
		"key":      a.Key,
		"selector": a.Selector,
		"text":     a.Text,
	}

	parts := []string{string(a.Type)}
	for _, field := range signatureFields {
		v := values[field]
		if v == "" {
			continue
		}
		parts = append(parts, field+"="+truncateSignatureValue(v))
	}
	return strings.Join(parts, "|")
}

func truncateSignatureValue(v string) string {
	if len(v) <= signatureValueLimit {
		return v
	}
	return v[:signatureValueLimit]
}
