// Package logutil keeps secrets out of request logs and test output. Source configs carry
// connector credentials and every API call carries a bearer token, so anything logged from
// a request or response passes through here first.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

const (
	redacted  = "[REDACTED]"
	truncated = "... [truncated]"
)

// sensitiveFragments match normalized keys by substring. "authorization" is matched exactly
// in IsSensitiveLogField so fields like "authorizationUrl" still log.
var sensitiveFragments = []string{
	"token", "secret", "password", "apikey", "cookie", "credential", "connectionstring",
}

// IsSensitiveLogField reports whether a header, JSON or YAML key likely holds a secret.
// Matching ignores case, '-' and '_'.
func IsSensitiveLogField(key string) bool {
	k := normalizeKey(key)
	if k == "authorization" {
		return true
	}
	return slices.ContainsFunc(sensitiveFragments, func(frag string) bool {
		return strings.Contains(k, frag)
	})
}

func normalizeKey(key string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
}

// FormatHeadersForLog renders headers as sorted `name="value"` pairs joined by "; ",
// with sensitive values redacted.
func FormatHeadersForLog(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		value := strings.Join(headers.Values(name), ", ")
		if IsSensitiveLogField(name) {
			value = redacted
		}
		parts[i] = fmt.Sprintf("%s=%q", strings.ToLower(name), value)
	}
	return strings.Join(parts, "; ")
}

// RedactJSON replaces the value of every sensitive key, at any depth. Input that is not
// JSON is returned unchanged.
func RedactJSON(body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}
	walk(doc, "", func(obj map[string]any, key, _ string) bool {
		if !IsSensitiveLogField(key) {
			return true
		}
		obj[key] = redacted
		return false
	})
	safe, err := json.Marshal(doc)
	if err != nil {
		return string(body)
	}
	return string(safe)
}

// FormatBodyForLog redacts JSON bodies and truncates the result to maxBytes.
func FormatBodyForLog(contentType string, body []byte, maxBytes int) string {
	if len(body) == 0 {
		return ""
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		return TruncateForLog(RedactJSON(body), maxBytes)
	}
	return TruncateForLog(string(body), maxBytes)
}

// TruncateForLog trims value, escapes newlines and cuts it to maxChars. maxChars <= 0
// disables the cut.
func TruncateForLog(value string, maxChars int) string {
	line := strings.ReplaceAll(strings.TrimSpace(value), "\n", `\n`)
	if maxChars <= 0 || len(line) <= maxChars {
		return line
	}
	return line[:maxChars] + truncated
}

// FindKeys returns the sorted dotted paths of every object key in doc named in keys.
// Matching follows IsSensitiveLogField's normalization.
func FindKeys(doc any, keys ...string) []string {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[normalizeKey(k)] = true
	}
	var found []string
	walk(doc, "", func(_ map[string]any, key, path string) bool {
		if want[normalizeKey(key)] {
			found = append(found, path)
		}
		return true
	})
	slices.Sort(found)
	return found
}

// walk visits every object key in a decoded JSON value. visit returns false to skip
// the key's subtree.
func walk(v any, prefix string, visit func(obj map[string]any, key, path string) bool) {
	switch typed := v.(type) {
	case map[string]any:
		for key, child := range typed {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			if visit(typed, key, path) {
				walk(child, path, visit)
			}
		}
	case []any:
		for i, child := range typed {
			walk(child, fmt.Sprintf("%s[%d]", prefix, i), visit)
		}
	}
}
