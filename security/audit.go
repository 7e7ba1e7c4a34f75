package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/jwt-oidc/instrumentation"
)

// Auditor writes security events to a structured log and counts them.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewAuditor creates an Auditor. A disabled auditor drops every event.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// SetMetrics makes the auditor count events in oauth.audit.events.total.
func (a *Auditor) SetMetrics(m *instrumentation.Metrics) {
	if a != nil {
		a.metrics = m
	}
}

// Event is one audit record.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent records event. It is a no-op on a nil or disabled auditor.
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := []any{
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"timestamp", event.Timestamp,
	}
	if event.IPAddress != "" {
		attrs = append(attrs, "ip_address", event.IPAddress)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	a.logger.InfoContext(ctx, "security_audit", attrs...)
	a.metrics.RecordAuditEvent(ctx, event.Type)
}

// LogCodeIssued records an issued authorization code.
func (a *Auditor) LogCodeIssued(ctx context.Context, userID, clientID, scope string, pkce bool) {
	a.LogEvent(ctx, Event{
		Type:     EventAuthorizationCodeIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
			"pkce":  pkce,
		},
	})
}

// LogTokenIssued records tokens minted from an authorization code.
func (a *Auditor) LogTokenIssued(ctx context.Context, userID, clientID, scope string) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenIssued,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed records a refresh grant.
func (a *Auditor) LogTokenRefreshed(ctx context.Context, userID, clientID string, rotated bool) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenRefreshed,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogTokenRevoked records a revocation request.
func (a *Auditor) LogTokenRevoked(ctx context.Context, userID, clientID, tokenTypeHint string) {
	a.LogEvent(ctx, Event{
		Type:     EventTokenRevoked,
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"token_type_hint": tokenTypeHint,
		},
	})
}

// LogReuseDetected records a second redemption of a code or refresh token.
func (a *Auditor) LogReuseDetected(ctx context.Context, eventType, userID, clientID string) {
	a.LogEvent(ctx, Event{
		Type:     eventType,
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogAuthFailure records a rejected credential.
func (a *Auditor) LogAuthFailure(ctx context.Context, userID, clientID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded records a throttled request.
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogLogout records an RP-initiated logout redirect.
func (a *Auditor) LogLogout(ctx context.Context, redirectURI string) {
	a.LogEvent(ctx, Event{
		Type: EventLogout,
		Details: map[string]any{
			"post_logout_redirect_uri": redirectURI,
		},
	})
}

func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(sum[:])[:16]
}
