package util

import "strings"

// SafeTruncate safely truncates a string to maxLen bytes without panicking.
// Credentials are only ever logged through this helper so that a log line
// carries a recognizable prefix and never a usable token.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("eyJhbGciOiJSUzI1NiIs", 8) // Returns: "eyJhbGci"
//	SafeTruncate("short", 10)                // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// ScopeTokens splits a space-delimited scope parameter (RFC 6749 section 3.3)
// into its tokens. Repeated whitespace is ignored, so "openid  email" yields
// two tokens and an empty string yields none.
func ScopeTokens(scope string) []string {
	return strings.Fields(scope)
}

// HasScope reports whether the space-delimited scope contains want.
func HasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

// EmailLocalPart returns the part of an email address before the first "@".
// An address without "@" is returned unchanged.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
