package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Defaults for Config.
const (
	DefaultAuthorizationCodeTTL = 600     // 10 minutes
	DefaultAccessTokenTTL       = 3600    // 1 hour
	DefaultIDTokenTTL           = 3600    // 1 hour
	DefaultRefreshTokenTTL      = 2592000 // 30 days

	DefaultScope = "openid profile email"

	DefaultRedirectURIPrefix        = "https://shopify.com/authentication/"
	DefaultRedirectURISegment       = "/login/external/callback"
	DefaultPostLogoutRedirectPrefix = "https://shopify.com/"
	DefaultLoginPath                = "/login"
)

// DefaultSupportedScopes are the scopes an authorization request may ask for.
var DefaultSupportedScopes = []string{"openid", "profile", "email", "customer_read", "customer_write"}

// DefaultUILocales are advertised in the discovery document.
var DefaultUILocales = []string{"en-US", "zh-CN"}

// Config holds the provider's configuration.
type Config struct {
	// Issuer is the provider's base URL. Endpoint URLs in the discovery
	// document are derived from it.
	Issuer string

	// ClientID and ClientSecret identify the single registered client.
	// ClientSecretHash may be given instead of ClientSecret as a bcrypt hash.
	ClientID         string
	ClientSecret     string
	ClientSecretHash string

	AuthorizationCodeTTL int64 // seconds, default: 600
	AccessTokenTTL       int64 // seconds, default: 3600
	IDTokenTTL           int64 // seconds, default: 3600
	RefreshTokenTTL      int64 // seconds, default: 2592000 (30 days)

	// SupportedScopes lists the scopes an authorization request may contain.
	SupportedScopes []string

	// DefaultScope is granted when an authorization request names none.
	DefaultScope string

	// RedirectURIPrefix and RedirectURISegment describe the registered
	// redirect URI pattern: the URI must start with the prefix and contain
	// the segment.
	RedirectURIPrefix  string
	RedirectURISegment string

	// PostLogoutRedirectPrefix restricts post_logout_redirect_uri.
	PostLogoutRedirectPrefix string

	// LoginPath is where a validated authorization request is sent for the
	// user to sign in. Relative paths are resolved against Issuer.
	LoginPath string

	// UILocales are advertised as ui_locales_supported.
	UILocales []string

	supportedScopes map[string]bool
}

// applySecureDefaults fills unset values and warns about risky ones.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applyPolicyDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.IDTokenTTL <= 0 {
		config.IDTokenTTL = DefaultIDTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
}

func applyPolicyDefaults(config *Config) {
	config.Issuer = strings.TrimRight(config.Issuer, "/")
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = DefaultSupportedScopes
	}
	if config.DefaultScope == "" {
		config.DefaultScope = DefaultScope
	}
	if config.RedirectURIPrefix == "" {
		config.RedirectURIPrefix = DefaultRedirectURIPrefix
	}
	if config.RedirectURISegment == "" {
		config.RedirectURISegment = DefaultRedirectURISegment
	}
	if config.PostLogoutRedirectPrefix == "" {
		config.PostLogoutRedirectPrefix = DefaultPostLogoutRedirectPrefix
	}
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	if len(config.UILocales) == 0 {
		config.UILocales = DefaultUILocales
	}

	config.supportedScopes = make(map[string]bool, len(config.SupportedScopes))
	for _, s := range config.SupportedScopes {
		config.supportedScopes[s] = true
	}
}

// Validate reports configuration that makes the provider unusable.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.ClientSecret == "" && c.ClientSecretHash == "" {
		return fmt.Errorf("client secret or client secret hash is required")
	}
	if !strings.Contains(c.RedirectURIPrefix, "://") {
		return fmt.Errorf("redirect URI prefix must be an absolute URL, got %q", c.RedirectURIPrefix)
	}
	return nil
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if u, err := url.Parse(config.Issuer); err == nil && u.Scheme == "http" && !isLocalhost(u.Hostname()) {
		logger.Warn("⚠️  SECURITY WARNING: Issuer is not served over HTTPS",
			"issuer", config.Issuer,
			"risk", "Codes, tokens and client secrets are exposed to network interception",
			"recommendation", "Serve the provider over HTTPS")
	}
	if !strings.HasPrefix(config.RedirectURIPrefix, "https://") {
		logger.Warn("⚠️  SECURITY WARNING: Redirect URI prefix is not HTTPS",
			"prefix", config.RedirectURIPrefix,
			"risk", "Authorization codes delivered over plain HTTP",
			"recommendation", "Register an https:// redirect URI prefix")
	}
	if config.RefreshTokenTTL > DefaultRefreshTokenTTL {
		logger.Warn("⚠️  SECURITY NOTICE: Long refresh token lifetime",
			"refresh_token_ttl_seconds", config.RefreshTokenTTL,
			"risk", "Refresh tokens cannot be revoked before they expire",
			"recommendation", "Keep RefreshTokenTTL at or below 30 days")
	}
}

func isLocalhost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
