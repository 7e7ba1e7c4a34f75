package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/internal/util"
	"github.com/giantswarm/jwt-oidc/storage"
)

const (
	// idLogLength is the number of characters of a credential id included in logs
	idLogLength = 8

	// DefaultMaxEntries bounds the number of consumed ids held at once
	DefaultMaxEntries = 100000
)

// Store is an in-memory storage.ReplayStore.
type Store struct {
	mu       sync.Mutex
	consumed map[string]time.Time // credential id -> retained until

	maxEntries int
	now        func() time.Time

	instrumentation *instrumentation.Instrumentation
	entriesAtomic   atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ storage.ReplayStore = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		consumed:        make(map[string]time.Time),
		maxEntries:      DefaultMaxEntries,
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source; used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// SetMaxEntries bounds the number of ids held at once. When full, Consume
// drops expired ids, then the id whose credential expires soonest.
func (s *Store) SetMaxEntries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxEntries = n
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	s.entriesAtomic.Store(int64(len(s.consumed)))
	s.mu.Unlock()

	if err := inst.RegisterReplayStoreSize(s.entriesAtomic.Load); err != nil {
		s.logger.Warn("Failed to register replay store size callback", "error", err)
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Len returns the number of ids currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumed)
}

// Consume implements storage.ReplayStore.
func (s *Store) Consume(ctx context.Context, id string, expiresAt time.Time) (err error) {
	startTime := time.Now()
	inst := s.getInstrumentation()
	ctx, span := inst.Tracer("storage").Start(ctx, "storage.consume")
	instrumentation.AddStorageAttributes(span, "consume", "memory")
	defer span.End()
	defer func() {
		recordStorageOperation(ctx, inst, span, "consume", err, startTime)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.consumed[id]; ok && now.Before(until) {
		s.logger.Debug("Credential id already consumed",
			"id_prefix", util.SafeTruncate(id, idLogLength))
		return storage.ErrAlreadyConsumed
	}

	if _, exists := s.consumed[id]; !exists && len(s.consumed) >= s.maxEntries {
		s.makeRoom(now)
	}

	s.consumed[id] = now.Add(storage.RetentionFor(now, expiresAt))
	s.entriesAtomic.Store(int64(len(s.consumed)))
	return nil
}

// makeRoom frees one slot. Expired ids go first; when none has expired the
// id whose credential expires soonest is dropped. Callers hold s.mu.
func (s *Store) makeRoom(now time.Time) {
	if s.pruneExpired(now) > 0 {
		return
	}

	var victim string
	var soonest time.Time
	for id, until := range s.consumed {
		if victim == "" || until.Before(soonest) {
			victim, soonest = id, until
		}
	}
	delete(s.consumed, victim)
	s.logger.Warn("Replay store at capacity, evicted the soonest expiring id",
		"max_entries", s.maxEntries,
		"evicted_until", soonest)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := s.pruneExpired(s.now())
	s.entriesAtomic.Store(int64(len(s.consumed)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired replay entries", "count", cleaned)
	}
}

// pruneExpired drops ids whose retention has passed. Callers hold s.mu.
func (s *Store) pruneExpired(now time.Time) int {
	cleaned := 0
	for id, until := range s.consumed {
		if !now.Before(until) {
			delete(s.consumed, id)
			cleaned++
		}
	}
	return cleaned
}

func (s *Store) getInstrumentation() *instrumentation.Instrumentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instrumentation
}

// recordStorageOperation records metrics for a storage operation and sets span status
func recordStorageOperation(ctx context.Context, inst *instrumentation.Instrumentation, span trace.Span, operation string, err error, startTime time.Time) {
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
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

	inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
