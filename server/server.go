package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/keys"
	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/storage"
)

// Server is the token issuance and verification engine. It holds no
// per-request state: every code and token it issues is a signed credential
// carrying the state needed to redeem it.
type Server struct {
	keys   *keys.Manager
	codec  *claims.Codec
	client *registeredClient
	replay storage.ReplayStore

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	now     func() time.Time
	metrics *instrumentation.Metrics
	tracer  trace.Tracer
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for issuing and verifying credentials.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server signing with km.
func New(km *keys.Manager, config *Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if km == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := newRegisteredClient(config.ClientID, config.ClientSecret, config.ClientSecretHash)
	if err != nil {
		return nil, err
	}

	s := &Server{
		keys:   km,
		client: client,
		Logger: logger,
		Config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.codec = claims.NewCodec(km, config.Issuer, claims.WithClock(s.now))
	s.tracer = s.Instrumentation.Tracer("server")
	return s, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
	if aud != nil {
		aud.SetMetrics(s.metrics)
	}
}

// SetInstrumentation enables metrics and tracing for engine operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	s.metrics = inst.Metrics()
	s.tracer = inst.Tracer("server")
	if s.Auditor != nil {
		s.Auditor.SetMetrics(s.metrics)
	}
}

// SetReplayStore enables single use of authorization codes and refresh
// tokens. Without a store both stay redeemable until they expire.
func (s *Server) SetReplayStore(store storage.ReplayStore) {
	s.replay = store
}

// Keys returns the signing key manager.
func (s *Server) Keys() *keys.Manager {
	return s.keys
}

// Codec returns the claims codec used for every credential.
func (s *Server) Codec() *claims.Codec {
	return s.codec
}

// Metrics returns the metrics holder, nil when instrumentation is off.
func (s *Server) Metrics() *instrumentation.Metrics {
	return s.metrics
}

// checkContext turns a cancelled or expired context into server_error.
func checkContext(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return ErrServerError(fmt.Errorf("request aborted: %w", err))
	}
	return nil
}

func ttl(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
