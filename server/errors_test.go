package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("token endpoint: %w", ErrInvalidGrant("code expired"))

	if !errors.Is(err, ErrInvalidGrant("")) {
		t.Error("errors.Is should match on code regardless of description")
	}
	if errors.Is(err, ErrInvalidRequest("")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestError_Wrap(t *testing.T) {
	base := ErrInvalidToken("invalid access token")
	cause := errors.New("signature mismatch")

	wrapped := base.Wrap(cause)
	if wrapped == base {
		t.Fatal("Wrap should return a copy")
	}
	if base.Err != nil {
		t.Error("Wrap must not modify the receiver")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if !strings.Contains(wrapped.Error(), "signature mismatch") {
		t.Errorf("Error() = %q, want it to mention the cause", wrapped.Error())
	}
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{ErrInvalidRequest("x"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{ErrUnauthorizedClient("x"), ErrorCodeUnauthorizedClient, http.StatusUnauthorized},
		{ErrInvalidClient("x"), ErrorCodeInvalidClient, http.StatusUnauthorized},
		{ErrUnsupportedResponseType("x"), ErrorCodeUnsupportedResponseType, http.StatusBadRequest},
		{ErrUnsupportedGrantType("x"), ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{ErrUnsupportedContentType("x"), ErrorCodeUnsupportedContentType, http.StatusBadRequest},
		{ErrInvalidScope("x"), ErrorCodeInvalidScope, http.StatusBadRequest},
		{ErrInvalidGrant("x"), ErrorCodeInvalidGrant, http.StatusBadRequest},
		{ErrInvalidToken("x"), ErrorCodeInvalidToken, http.StatusUnauthorized},
		{ErrRateLimitExceeded("x"), ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrServerError(nil), ErrorCodeServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
		})
	}
}

func TestErrServerError_HidesCause(t *testing.T) {
	err := ErrServerError(errors.New("dial tcp 10.0.0.3:6379: connection refused"))

	if err.Description != "internal server error" {
		t.Errorf("Description = %q, want the generic description", err.Description)
	}
	if strings.Contains(err.Description, "10.0.0.3") {
		t.Error("description must not leak the cause")
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	oe := ErrInvalidScope("bad scope")
	if got := AsError(fmt.Errorf("wrapped: %w", oe)); got != oe {
		t.Errorf("AsError should unwrap to the original *Error, got %v", got)
	}

	got := AsError(context.DeadlineExceeded)
	if got.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want %q", got.Code, ErrorCodeServerError)
	}
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Error("server_error should keep the original cause")
	}
}

func TestCheckContext(t *testing.T) {
	if err := checkContext(context.Background()); err != nil {
		t.Errorf("checkContext(live) = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := checkContext(ctx)
	if err == nil {
		t.Fatal("checkContext(cancelled) should fail")
	}
	if err.Code != ErrorCodeServerError {
		t.Errorf("Code = %q, want %q", err.Code, ErrorCodeServerError)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("error should wrap context.Canceled")
	}
}
