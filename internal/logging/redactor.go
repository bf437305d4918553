package logging

import (
	"strings"
)

const redactedValue = "[REDACTED]"

// defaultSensitiveKeys are field names whose values never reach the log.
var defaultSensitiveKeys = []string{
	// credentials
	"password", "token", "secret", "totp_secret", "totp_code",
	// SRP6 and reconnect material
	"session_key", "key", "verifier", "salt", "b", "m1", "m2", "r1", "r2",
	// backends
	"dsn", "redis_password",
}

// Redactor masks sensitive values in log fields and free text.
type Redactor struct {
	keys map[string]struct{}
}

// NewRedactor returns a Redactor for the default keys plus extra.
func NewRedactor(extra ...string) *Redactor {
	r := &Redactor{keys: make(map[string]struct{}, len(defaultSensitiveKeys)+len(extra))}
	for _, k := range defaultSensitiveKeys {
		r.AddSensitiveKey(k)
	}
	for _, k := range extra {
		r.AddSensitiveKey(k)
	}
	return r
}

// AddSensitiveKey marks key as sensitive. Keys are case-insensitive.
func (r *Redactor) AddSensitiveKey(key string) {
	r.keys[strings.ToLower(key)] = struct{}{}
}

// RemoveSensitiveKey unmarks key.
func (r *Redactor) RemoveSensitiveKey(key string) {
	delete(r.keys, strings.ToLower(key))
}

// RedactFields returns a copy of fields with sensitive values replaced.
// Nested maps are redacted as well.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case r.isSensitiveKey(k):
			out[k] = redactedValue
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = r.RedactFields(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// RedactString returns redactedValue when s carries an assignment to a
// sensitive key ("key=", "key: " or "\"key\":"), and s otherwise. Keys only
// match at a word boundary, so "db=" does not match "b".
func (r *Redactor) RedactString(s string) string {
	lower := strings.ToLower(s)
	for key := range r.keys {
		for _, pattern := range [...]string{key + "=", key + ": ", `"` + key + `":`} {
			if containsAtBoundary(lower, pattern) {
				return redactedValue
			}
		}
	}
	return s
}

func (r *Redactor) isSensitiveKey(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func containsAtBoundary(s, pattern string) bool {
	for offset := 0; ; {
		i := strings.Index(s[offset:], pattern)
		if i < 0 {
			return false
		}
		i += offset
		if i == 0 || !isWordByte(s[i-1]) || pattern[0] == '"' {
			return true
		}
		offset = i + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
