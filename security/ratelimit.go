package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultRateLimitMaxEntries = 10000
	DefaultRateLimitIdle       = 30 * time.Minute
	DefaultRateLimitSweep      = 5 * time.Minute
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per identifier.
	RequestsPerSecond float64

	// Burst is the bucket size. Values below 1 become 1.
	Burst int

	// MaxEntries bounds the number of tracked identifiers (default 10000).
	MaxEntries int

	// IdleTimeout drops buckets not used for this long (default 30m).
	IdleTimeout time.Duration

	// CleanupInterval is the sweep period (default 5m).
	CleanupInterval time.Duration
}

type bucket struct {
	identifier string
	limiter    *rate.Limiter
	lastSeen   time.Time
}

// RateLimiter is a per-identifier token bucket limiter with LRU eviction.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List

	limit      rate.Limit
	burst      int
	maxEntries int
	idle       time.Duration
	now        func() time.Time
	logger     *slog.Logger

	evictions int64
	sweeps    int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine. Call
// Stop to release it.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultRateLimitMaxEntries
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultRateLimitIdle
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitSweep
	}

	rl := &RateLimiter{
		buckets:    make(map[string]*list.Element),
		lru:        list.New(),
		limit:      rate.Limit(cfg.RequestsPerSecond),
		burst:      cfg.Burst,
		maxEntries: cfg.MaxEntries,
		idle:       cfg.IdleTimeout,
		now:        time.Now,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	go rl.cleanupLoop(cfg.CleanupInterval)
	return rl
}

// Allow consumes one token for identifier and reports whether the request
// may proceed.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elem, ok := rl.buckets[identifier]; ok {
		rl.lru.MoveToFront(elem)
		b := elem.Value.(*bucket)
		b.lastSeen = now
		return b.limiter.AllowN(now, 1)
	}

	if len(rl.buckets) >= rl.maxEntries {
		rl.evictOldest()
	}

	b := &bucket{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastSeen:   now,
	}
	rl.buckets[identifier] = rl.lru.PushFront(b)
	return b.limiter.AllowN(now, 1)
}

// must hold rl.mu
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	b := rl.lru.Remove(elem).(*bucket)
	delete(rl.buckets, b.identifier)
	rl.evictions++
	rl.logger.Debug("Rate limiter evicted identifier",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.buckets))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Cleanup drops buckets idle for longer than the configured timeout. The
// LRU list is ordered by last use, so the sweep stops at the first bucket
// still in use.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for elem := rl.lru.Back(); elem != nil; {
		b := elem.Value.(*bucket)
		if now.Sub(b.lastSeen) <= rl.idle {
			break
		}
		prev := elem.Prev()
		rl.lru.Remove(elem)
		delete(rl.buckets, b.identifier)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.sweeps++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.buckets))
	}
	return removed
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// RateLimitStats is a snapshot for monitoring.
type RateLimitStats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
}

// Stats returns a snapshot of the limiter's bookkeeping.
func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return RateLimitStats{
		CurrentEntries: len(rl.buckets),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.sweeps,
	}
}
