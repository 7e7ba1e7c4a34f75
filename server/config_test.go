package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/giantswarm/jwt-oidc/internal/testutil"
)

func TestApplySecureDefaults(t *testing.T) {
	config := applySecureDefaults(&Config{Issuer: "https://op.example.test/"}, slog.Default())

	if config.Issuer != "https://op.example.test" {
		t.Errorf("Issuer = %q, want trailing slash removed", config.Issuer)
	}
	if config.AuthorizationCodeTTL != DefaultAuthorizationCodeTTL {
		t.Errorf("AuthorizationCodeTTL = %d, want %d", config.AuthorizationCodeTTL, DefaultAuthorizationCodeTTL)
	}
	if config.AccessTokenTTL != DefaultAccessTokenTTL {
		t.Errorf("AccessTokenTTL = %d, want %d", config.AccessTokenTTL, DefaultAccessTokenTTL)
	}
	if config.IDTokenTTL != DefaultIDTokenTTL {
		t.Errorf("IDTokenTTL = %d, want %d", config.IDTokenTTL, DefaultIDTokenTTL)
	}
	if config.RefreshTokenTTL != DefaultRefreshTokenTTL {
		t.Errorf("RefreshTokenTTL = %d, want %d", config.RefreshTokenTTL, DefaultRefreshTokenTTL)
	}
	if config.DefaultScope != DefaultScope {
		t.Errorf("DefaultScope = %q, want %q", config.DefaultScope, DefaultScope)
	}
	if config.RedirectURIPrefix != DefaultRedirectURIPrefix {
		t.Errorf("RedirectURIPrefix = %q", config.RedirectURIPrefix)
	}
	if config.LoginPath != DefaultLoginPath {
		t.Errorf("LoginPath = %q", config.LoginPath)
	}
	for _, scope := range DefaultSupportedScopes {
		if !config.supportedScopes[scope] {
			t.Errorf("scope %q should be supported by default", scope)
		}
	}
}

func TestApplySecureDefaults_KeepsExplicitValues(t *testing.T) {
	config := applySecureDefaults(&Config{
		Issuer:          testutil.TestIssuer,
		AccessTokenTTL:  900,
		SupportedScopes: []string{"openid"},
		DefaultScope:    "openid",
	}, slog.Default())

	if config.AccessTokenTTL != 900 {
		t.Errorf("AccessTokenTTL = %d, want 900", config.AccessTokenTTL)
	}
	if config.supportedScopes["email"] {
		t.Error("email should not be supported when SupportedScopes is set")
	}
	if config.DefaultScope != "openid" {
		t.Errorf("DefaultScope = %q, want openid", config.DefaultScope)
	}
}

func TestLogSecurityWarnings(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		wantWarn string
	}{
		{
			name:     "plain http issuer",
			config:   &Config{Issuer: "http://op.example.test"},
			wantWarn: "Issuer is not served over HTTPS",
		},
		{
			name:     "http redirect prefix",
			config:   &Config{Issuer: testutil.TestIssuer, RedirectURIPrefix: "http://shop.example/"},
			wantWarn: "Redirect URI prefix is not HTTPS",
		},
		{
			name:     "long refresh lifetime",
			config:   &Config{Issuer: testutil.TestIssuer, RefreshTokenTTL: 90 * 24 * 3600},
			wantWarn: "Long refresh token lifetime",
		},
		{
			name:   "localhost over http is fine",
			config: &Config{Issuer: "http://localhost:3000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			applySecureDefaults(tt.config, logger)

			out := buf.String()
			if tt.wantWarn == "" {
				if strings.Contains(out, "SECURITY WARNING") {
					t.Errorf("unexpected warning: %s", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantWarn) {
				t.Errorf("expected warning %q, got %q", tt.wantWarn, out)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return applySecureDefaults(&Config{
			Issuer:       testutil.TestIssuer,
			ClientID:     testutil.TestClientID,
			ClientSecret: testutil.TestClientSecret,
		}, slog.Default())
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing issuer", mutate: func(c *Config) { c.Issuer = "" }, wantErr: "issuer is required"},
		{name: "relative issuer", mutate: func(c *Config) { c.Issuer = "op.example.test" }, wantErr: "absolute URL"},
		{name: "issuer with query", mutate: func(c *Config) { c.Issuer = "https://op.example.test?x=1" }, wantErr: "query or fragment"},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: "client id"},
		{name: "missing secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantErr: "client secret"},
		{name: "hash instead of secret", mutate: func(c *Config) { c.ClientSecret = ""; c.ClientSecretHash = "$2a$04$x" }},
		{name: "relative redirect prefix", mutate: func(c *Config) { c.RedirectURIPrefix = "/callback" }, wantErr: "redirect URI prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
