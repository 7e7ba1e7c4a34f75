package oidc

import (
	"time"

	"github.com/giantswarm/jwt-oidc/security"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

// Config holds the HTTP adapter configuration.
type Config struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of reverse proxies in front of the
	// provider. The client IP is taken that many hops from the end of
	// X-Forwarded-For. Default: 1 when TrustProxy is set.
	TrustedProxyCount int

	// DocumentMaxAge is how long the discovery and JWKS documents may be
	// cached. Default: 24 hours.
	DocumentMaxAge time.Duration

	// MaxBodyBytes caps request bodies. Default: 1 MiB.
	MaxBodyBytes int64
}

func (c *Config) applyDefaults() {
	if c.TrustProxy && c.TrustedProxyCount <= 0 {
		c.TrustedProxyCount = 1
	}
	if c.DocumentMaxAge <= 0 {
		c.DocumentMaxAge = security.DocumentMaxAge
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}
