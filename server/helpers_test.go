package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/internal/testutil"
	"github.com/giantswarm/jwt-oidc/keys"
	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/storage/memory"
)

const testNonce = "n-0S6_WzA2Mj"

var testEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	clock *testutil.MockTime
	store *memory.Store
	logs  *bytes.Buffer
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Issuer:           testutil.TestIssuer,
		ClientID:         testutil.TestClientID,
		ClientSecretHash: testutil.ClientSecretHash(t),
	}
}

// setupTestServer builds a Server on a mock clock with a memory replay
// store and an auditor writing JSON to env.logs.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return setupTestServerWithConfig(t, testConfig(t))
}

func setupTestServerWithConfig(t *testing.T, config *Config) *testEnv {
	t.Helper()

	clock := testutil.NewMockTime(testEpoch)
	km, err := keys.New(testutil.RSAKey(t))
	if err != nil {
		t.Fatalf("keys.New() error = %v", err)
	}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srv, err := New(km, config, logger, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	store := memory.New()
	store.SetClock(clock.Now)
	t.Cleanup(store.Stop)
	srv.SetReplayStore(store)
	srv.SetAuditor(security.NewAuditor(logger, true))

	return &testEnv{srv: srv, clock: clock, store: store, logs: logs}
}

func testUser() *claims.User {
	return &claims.User{
		ID:         testutil.TestUserID,
		Email:      testutil.TestUserEmail,
		GivenName:  "Ada",
		FamilyName: "Lovelace",
	}
}

func validAuthorizationRequest() *AuthorizationRequest {
	return &AuthorizationRequest{
		ClientID:     testutil.TestClientID,
		RedirectURI:  testutil.TestRedirectURI,
		Scope:        "openid profile email",
		State:        "xyz",
		Nonce:        testNonce,
		ResponseType: ResponseTypeCode,
	}
}

// issueCode runs Authorize and returns the code from the redirect.
func (env *testEnv) issueCode(t *testing.T, req *AuthorizationRequest) string {
	t.Helper()
	result, err := env.srv.Authorize(context.Background(), req, testUser())
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	u, err := url.Parse(result.RedirectURI)
	if err != nil {
		t.Fatalf("redirect is not a URL: %v", err)
	}
	code := u.Query().Get("code")
	if code != result.Code {
		t.Fatalf("redirect code = %q, want %q", code, result.Code)
	}
	return code
}

func codeRequest(code, verifier string) *TokenRequest {
	return &TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  testutil.TestRedirectURI,
		CodeVerifier: verifier,
		ClientID:     testutil.TestClientID,
		ClientSecret: testutil.TestClientSecret,
	}
}

func refreshRequest(token string) *TokenRequest {
	return &TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: token,
		ClientID:     testutil.TestClientID,
		ClientSecret: testutil.TestClientSecret,
	}
}

// assertErrorCode fails unless err is an *Error with the given code.
func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	oe := AsError(err)
	if oe.Code != code {
		t.Errorf("error code = %q, want %q (err = %v)", oe.Code, code, err)
	}
}
