// Package redact provides helpers for stripping sensitive values from log
// output before it leaves the process boundary.
//
// The completion endpoint occasionally echoes request headers back in error
// bodies, and Kotori logs those bodies. Redaction keeps the API key and the
// Matrix access token out of the log stream in that case. It is best-effort:
// it operates on string representations and relies on callers to pass the
// right set of sensitive terms.
package redact

import "strings"

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(errorBody, apiKey, accessToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
