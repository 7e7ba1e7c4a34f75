package server

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/giantswarm/jwt-oidc/internal/testutil"
)

func TestDiscovery(t *testing.T) {
	env := setupTestServer(t)
	doc := env.srv.Discovery()

	endpoints := map[string]string{
		"issuer":                 doc.Issuer,
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"jwks_uri":               doc.JWKSURI,
		"userinfo_endpoint":      doc.UserInfoEndpoint,
		"revocation_endpoint":    doc.RevocationEndpoint,
		"end_session_endpoint":   doc.EndSessionEndpoint,
	}
	want := map[string]string{
		"issuer":                 testutil.TestIssuer,
		"authorization_endpoint": testutil.TestIssuer + "/api/authorize",
		"token_endpoint":         testutil.TestIssuer + "/api/token",
		"jwks_uri":               testutil.TestIssuer + "/.well-known/jwks.jsn",
		"userinfo_endpoint":      testutil.TestIssuer + "/api/userinfo",
		"revocation_endpoint":    testutil.TestIssuer + "/api/token/revoke",
		"end_session_endpoint":   testutil.TestIssuer + "/api/logout",
	}
	for k, v := range want {
		if endpoints[k] != v {
			t.Errorf("%s = %q, want %q", k, endpoints[k], v)
		}
	}

	if !slices.Equal(doc.ResponseTypesSupported, []string{"code"}) {
		t.Errorf("response_types_supported = %v", doc.ResponseTypesSupported)
	}
	if !slices.Equal(doc.IDTokenSigningAlgValuesSupported, []string{"RS256"}) {
		t.Errorf("id_token_signing_alg_values_supported = %v", doc.IDTokenSigningAlgValuesSupported)
	}
	if !slices.Equal(doc.CodeChallengeMethodsSupported, []string{"S256"}) {
		t.Errorf("code_challenge_methods_supported = %v", doc.CodeChallengeMethodsSupported)
	}
	if !slices.Contains(doc.TokenEndpointAuthMethodsSupported, "client_secret_basic") {
		t.Errorf("token_endpoint_auth_methods_supported = %v", doc.TokenEndpointAuthMethodsSupported)
	}
}

func TestDiscovery_JSONKeepsFalseBooleans(t *testing.T) {
	env := setupTestServer(t)

	raw, err := json.Marshal(env.srv.Discovery())
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	for _, key := range []string{"claims_parameter_supported", "request_uri_parameter_supported", "backchannel_logout_supported"} {
		v, ok := doc[key]
		if !ok {
			t.Errorf("%s should be present", key)
			continue
		}
		if v != false {
			t.Errorf("%s = %v, want false", key, v)
		}
	}
	if _, ok := doc["registration_endpoint"]; ok {
		t.Error("registration_endpoint should be omitted")
	}
}

func TestJWKS(t *testing.T) {
	env := setupTestServer(t)
	set := env.srv.JWKS()

	if len(set.Keys) != 1 {
		t.Fatalf("JWKS has %d keys, want 1", len(set.Keys))
	}
	key := set.Keys[0]
	if !key.IsPublic() {
		t.Error("JWKS must only publish public keys")
	}
	if key.KeyID != env.srv.Keys().KeyID() {
		t.Errorf("kid = %q, want %q", key.KeyID, env.srv.Keys().KeyID())
	}
	if key.Use != "sig" || key.Algorithm != "RS256" {
		t.Errorf("use/alg = %q/%q, want sig/RS256", key.Use, key.Algorithm)
	}
}
