package security

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newJSONAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewAuditor(slog.New(slog.NewJSONHandler(&buf, nil)), enabled), &buf
}

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not a single JSON line: %v\n%s", err, buf.String())
	}
	return entry
}

func TestNewAuditor(t *testing.T) {
	a := NewAuditor(nil, true)
	if a.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if !a.enabled {
		t.Error("auditor should be enabled")
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		wantLog bool
	}{
		{name: "enabled", enabled: true, wantLog: true},
		{name: "disabled", enabled: false, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, buf := newJSONAuditor(tt.enabled)

			a.LogEvent(context.Background(), Event{
				Type:      "test_event",
				UserID:    "user-123",
				ClientID:  "client-456",
				IPAddress: "192.168.1.1",
				Details:   map[string]any{"key": "value"},
			})

			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("logged = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestAuditor_HashesUserID(t *testing.T) {
	a, buf := newJSONAuditor(true)

	a.LogTokenIssued(context.Background(), "user-123", "client-456", "openid email")

	if strings.Contains(buf.String(), "user-123") {
		t.Fatalf("raw user id leaked into audit log: %s", buf.String())
	}
	entry := decodeAuditLine(t, buf)
	if got := entry["user_id_hash"]; got != hashForLogging("user-123") {
		t.Errorf("user_id_hash = %v, want %s", got, hashForLogging("user-123"))
	}
	if got := entry["event_type"]; got != EventTokenIssued {
		t.Errorf("event_type = %v, want %s", got, EventTokenIssued)
	}
	if got := entry["client_id"]; got != "client-456" {
		t.Errorf("client_id = %v, want client-456", got)
	}
}

func TestAuditor_RequestID(t *testing.T) {
	a, buf := newJSONAuditor(true)
	ctx := WithRequestID(context.Background(), "req-1")

	a.LogCodeIssued(ctx, "user-1", "client-1", "openid", true)

	entry := decodeAuditLine(t, buf)
	if got := entry["request_id"]; got != "req-1" {
		t.Errorf("request_id = %v, want req-1", got)
	}
}

func TestAuditor_Helpers(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		log       func(a *Auditor)
		eventType string
		detail    string
	}{
		{
			name:      "code issued",
			log:       func(a *Auditor) { a.LogCodeIssued(ctx, "u", "c", "openid email", true) },
			eventType: EventAuthorizationCodeIssued,
			detail:    "pkce",
		},
		{
			name:      "token refreshed",
			log:       func(a *Auditor) { a.LogTokenRefreshed(ctx, "u", "c", true) },
			eventType: EventTokenRefreshed,
			detail:    "rotated",
		},
		{
			name:      "token revoked",
			log:       func(a *Auditor) { a.LogTokenRevoked(ctx, "u", "c", "refresh_token") },
			eventType: EventTokenRevoked,
			detail:    "token_type_hint",
		},
		{
			name:      "code reuse",
			log:       func(a *Auditor) { a.LogReuseDetected(ctx, EventAuthorizationCodeReuseDetected, "u", "c") },
			eventType: EventAuthorizationCodeReuseDetected,
		},
		{
			name:      "auth failure",
			log:       func(a *Auditor) { a.LogAuthFailure(ctx, "", "c", "203.0.113.1", "invalid_client") },
			eventType: EventAuthFailure,
			detail:    "reason",
		},
		{
			name:      "rate limit",
			log:       func(a *Auditor) { a.LogRateLimitExceeded(ctx, "203.0.113.1", "/api/token") },
			eventType: EventRateLimitExceeded,
			detail:    "endpoint",
		},
		{
			name:      "logout",
			log:       func(a *Auditor) { a.LogLogout(ctx, "https://shopify.com/") },
			eventType: EventLogout,
			detail:    "post_logout_redirect_uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, buf := newJSONAuditor(true)
			tt.log(a)

			entry := decodeAuditLine(t, buf)
			if got := entry["event_type"]; got != tt.eventType {
				t.Errorf("event_type = %v, want %s", got, tt.eventType)
			}
			if tt.detail == "" {
				return
			}
			details, ok := entry["details"].(map[string]any)
			if !ok {
				t.Fatalf("details missing: %v", entry)
			}
			if _, ok := details[tt.detail]; !ok {
				t.Errorf("details missing %q: %v", tt.detail, details)
			}
		})
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var a *Auditor
	a.LogEvent(context.Background(), Event{Type: "x"})
	a.LogTokenIssued(context.Background(), "u", "c", "openid")
	a.SetMetrics(nil)
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}
	h1 := hashForLogging("user-123")
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
	if h1 != hashForLogging("user-123") {
		t.Error("hash should be deterministic")
	}
	if h1 == hashForLogging("user-124") {
		t.Error("different inputs should hash differently")
	}
}
