package oidc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/server"
)

// Handler is a thin HTTP adapter for the provider engine.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server  *server.Server
	config  *Config
	logger  *slog.Logger
	limiter *security.RateLimiter
	now     func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, config *Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()

	return &Handler{
		server: srv,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetRateLimiter enables per-IP rate limiting of the token endpoint.
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.limiter = rl
}

// RegisterRoutes registers every provider endpoint on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+server.PathJWKS, h.instrument("jwks", h.ServeJWKS))
	mux.Handle("GET "+server.PathDiscovery, h.instrument("discovery", h.ServeDiscovery))
	mux.Handle("GET "+server.PathAuthorize, h.instrument("authorize", h.ServeAuthorization))
	mux.Handle("POST "+server.PathAuthorize, h.instrument("authorize", h.ServeAuthorize))
	mux.Handle("POST "+server.PathToken, h.instrument("token", h.ServeToken))
	mux.Handle("GET "+server.PathUserInfo, h.instrument("userinfo", h.ServeUserInfo))
	mux.Handle("POST "+server.PathRevoke, h.instrument("revoke", h.ServeTokenRevocation))
	mux.Handle("GET "+server.PathLogout, h.instrument("logout", h.ServeLogout))
	mux.Handle("GET "+server.PathHealthz, http.HandlerFunc(h.ServeHealth))
}

// Routes returns every endpoint behind the request id middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return security.RequestIDMiddleware(mux)
}

// ServeJWKS serves the public key set.
func (h *Handler) ServeJWKS(w http.ResponseWriter, _ *http.Request) {
	security.SetDocumentHeaders(w, h.config.DocumentMaxAge, h.now())
	writeJSON(w, http.StatusOK, h.server.JWKS())
}

// ServeDiscovery serves the OpenID Provider configuration document.
func (h *Handler) ServeDiscovery(w http.ResponseWriter, _ *http.Request) {
	security.SetDocumentHeaders(w, h.config.DocumentMaxAge, h.now())
	writeJSON(w, http.StatusOK, h.server.Discovery())
}

// ServeAuthorization validates an authorization request and sends the user
// agent to the login step.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &server.AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		ResponseType:        q.Get("response_type"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	if err := h.server.ValidateAuthorizationRequest(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetNoStore(w)
	http.Redirect(w, r, h.server.LoginRedirect(req), http.StatusFound)
}

// ServeAuthorize issues an authorization code for the user the login step
// authenticated.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	var body AuthorizeRequest
	if err := h.decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.server.Authorize(r.Context(), &body.AuthorizationRequest, body.User)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	writeJSON(w, http.StatusOK, AuthorizeResponse{RedirectURL: result.RedirectURI})
}

// ServeToken handles the token endpoint.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "token") {
		return
	}

	params, err := h.readParams(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	clientID, clientSecret := clientCredentials(r, params)
	set, err := h.server.Token(r.Context(), &server.TokenRequest{
		GrantType:    params.Get("grant_type"),
		Code:         params.Get("code"),
		RedirectURI:  params.Get("redirect_uri"),
		CodeVerifier: params.Get("code_verifier"),
		RefreshToken: params.Get("refresh_token"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	writeJSON(w, http.StatusOK, set)
}

// ServeUserInfo returns the claims of a bearer access token.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.server.UserInfo(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	writeJSON(w, http.StatusOK, info)
}

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	params, err := h.readParams(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Client authentication is optional; credentials that are sent must be valid.
	if _, _, ok := r.BasicAuth(); ok {
		clientID, secret := clientCredentials(r, params)
		if err := h.server.ValidateClientCredentials(r.Context(), clientID, secret); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	if err := h.server.RevokeToken(r.Context(), params.Get("token"), params.Get("token_type_hint")); err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.WriteHeader(http.StatusOK)
}

// ServeLogout redirects to the client's post-logout page.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.server.Logout(r.Context(), q.Get("post_logout_redirect_uri"), q.Get("state"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetNoStore(w)
	http.Redirect(w, r, target, http.StatusFound)
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// allow applies the rate limiter to the client IP. It writes the 429
// response itself.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.limiter == nil {
		return true
	}
	ip := h.clientIP(r)
	if h.limiter.Allow(ip) {
		return true
	}

	h.logger.Warn("Rate limit exceeded", "endpoint", endpoint, "ip", ip)
	h.server.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
	h.server.Auditor.LogRateLimitExceeded(r.Context(), ip, endpoint)

	w.Header().Set("Retry-After", "1")
	h.writeError(w, r, server.ErrRateLimitExceeded("too many requests"))
	return false
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.ClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// instrument wraps an endpoint with a span and the HTTP request metrics.
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		inst := h.server.Instrumentation

		ctx, span := inst.Tracer("http").Start(r.Context(), "oidc.http."+endpoint)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if inst.ShouldLogClientIPs() {
			instrumentation.AddSecurityAttributes(span, h.clientIP(r))
		}
		if status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(status))
		}

		duration := time.Since(startTime).Seconds() * 1000
		h.server.Metrics().RecordHTTPRequest(ctx, r.Method, endpoint, status, duration)
	})
}
