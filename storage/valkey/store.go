package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/internal/util"
	"github.com/giantswarm/jwt-oidc/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oidc:"

	// idLogLength is the number of characters to include when logging credential ids
	idLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// URL is a redis://, rediss:// or unix:// connection string. When set,
	// Address, Password, DB and TLS are taken from it.
	URL string

	// Address is the Valkey server address, e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oidc:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.ReplayStore.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time

	instMu          sync.RWMutex
	instrumentation *instrumentation.Instrumentation
}

var _ storage.ReplayStore = (*Store)(nil)

// New creates a new Valkey-backed store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey replay store",
		"address", opts.InitAddress,
		"db", opts.SelectDB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}, nil
}

func clientOptions(cfg Config) (valkeygo.ClientOption, error) {
	if cfg.URL != "" {
		opts, err := valkeygo.ParseURL(cfg.URL)
		if err != nil {
			return valkeygo.ClientOption{}, fmt.Errorf("invalid valkey url: %w", err)
		}
		return opts, nil
	}

	if cfg.Address == "" {
		return valkeygo.ClientOption{}, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}
	return opts, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey replay store connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instMu.Lock()
	defer s.instMu.Unlock()
	s.instrumentation = inst
}

func (s *Store) getInstrumentation() *instrumentation.Instrumentation {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	return s.instrumentation
}

func (s *Store) replayKey(id string) string {
	return s.prefix + "replay:" + id
}

// Consume implements storage.ReplayStore.
func (s *Store) Consume(ctx context.Context, id string, expiresAt time.Time) (err error) {
	startTime := time.Now()
	inst := s.getInstrumentation()
	ctx, span := inst.Tracer("storage").Start(ctx, "storage.consume")
	instrumentation.AddStorageAttributes(span, "consume", "valkey")
	defer span.End()
	defer func() {
		result := "success"
		switch {
		case errors.Is(err, storage.ErrAlreadyConsumed):
			result = "replayed"
			instrumentation.SetSpanError(span, err.Error())
		case err != nil:
			result = "error"
			instrumentation.RecordError(span, err)
		default:
			instrumentation.SetSpanSuccess(span)
		}
		inst.Metrics().RecordStorageOperation(ctx, "consume", result, float64(time.Since(startTime).Microseconds())/1000)
	}()

	if err := storage.ValidateID(id); err != nil {
		return err
	}

	key := s.replayKey(id)
	ttl := storage.RetentionFor(s.now(), expiresAt)

	seconds := max(int64(ttl/time.Second), 1)
	err = s.client.Do(ctx, s.client.B().Set().Key(key).Value("1").Nx().ExSeconds(seconds).Build()).Error()
	if valkeygo.IsValkeyNil(err) {
		s.logger.Debug("Credential id already consumed",
			"id_prefix", util.SafeTruncate(id, idLogLength))
		return storage.ErrAlreadyConsumed
	}
	if err != nil {
		return fmt.Errorf("failed to mark credential consumed: %w", err)
	}
	return nil
}
