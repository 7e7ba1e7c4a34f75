package security

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DocumentMaxAge is how long clients may cache the discovery and JWKS
// documents.
const DocumentMaxAge = 24 * time.Hour

// SetSecurityHeaders sets the headers every credential-bearing response
// carries. HSTS is only sent when issuer is an https URL.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if u, err := url.Parse(issuer); err == nil && u.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	SetNoStore(w)
}

// SetNoStore forbids caching of the response (RFC 6749 section 5.1).
func SetNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// SetDocumentHeaders marks a public document (discovery, JWKS) as cacheable
// for maxAge and readable from any origin.
func SetDocumentHeaders(w http.ResponseWriter, maxAge time.Duration, now time.Time) {
	if maxAge <= 0 {
		maxAge = DocumentMaxAge
	}
	h := w.Header()
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int64(maxAge/time.Second)))
	h.Set("Expires", now.Add(maxAge).UTC().Format(http.TimeFormat))
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Content-Type-Options", "nosniff")
}
