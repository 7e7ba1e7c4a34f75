package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxIDLength is the maximum accepted length of a credential id.
const MaxIDLength = 256

var (
	// ErrAlreadyConsumed is returned by Consume when the id was consumed
	// before and has not expired yet.
	ErrAlreadyConsumed = errors.New("credential already consumed")

	// ErrInvalidID is returned for empty or oversized ids.
	ErrInvalidID = errors.New("invalid credential id")
)

// ReplayStore records consumed credential ids.
// All methods accept context.Context for tracing and cancellation.
type ReplayStore interface {
	// Consume atomically marks id as used until expiresAt. It returns
	// ErrAlreadyConsumed if id is already marked. An expiresAt in the past
	// still marks the id for a minimal period so that concurrent redemptions
	// of a just-expired credential cannot both succeed.
	Consume(ctx context.Context, id string, expiresAt time.Time) error
}

// ValidateID checks that id can be used as a store key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, MaxIDLength)
	}
	return nil
}

// RetentionFor returns how long an id consumed at now must be retained,
// never less than one second.
func RetentionFor(now, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl.Round(time.Second)
}
