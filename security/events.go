package security

// Audit event types.
const (
	EventAuthorizationCodeIssued        = "authorization_code_issued"
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	EventTokenIssued        = "token_issued"
	EventTokenRefreshed     = "token_refreshed"
	EventTokenRevoked       = "token_revoked"
	EventTokenReuseDetected = "token_reuse_detected" //nolint:gosec // event name

	EventLogout = "logout"

	// EventAuthFailure covers rejected client credentials and credentials
	// that fail verification.
	EventAuthFailure = "auth_failure"

	EventPKCEValidationFailed = "pkce_validation_failed"
	EventInvalidRedirect      = "invalid_redirect"
	EventRateLimitExceeded    = "rate_limit_exceeded"
)
