// Package security holds the HTTP-facing protections of the provider:
// response headers, request correlation ids, per-client rate limiting,
// client IP resolution and the audit trail.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket (golang.org/x/time/rate) per identifier,
// usually the client IP calling the token endpoint. Buckets live in an LRU
// list so that a flood of distinct identifiers cannot grow memory without
// bound; idle buckets are dropped by a background sweep.
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{
//	    RequestsPerSecond: 10,
//	    Burst:             20,
//	}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429 rate_limit_exceeded
//	}
//
// Stats reports the number of tracked identifiers and evictions. A steadily
// rising eviction count usually means MaxEntries is too small or the
// endpoint is being sprayed from many addresses.
//
// # Audit
//
// Auditor writes one structured log line per security relevant event. User
// ids are hashed before they are logged and credentials are never logged.
package security
