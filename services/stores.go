package services

import (
	"context"
	"errors"
	"time"

	"roulette_server/models"
)

// Error taxonomy shared by every store and the matchmaking service. Handlers
// map these to HTTP statuses; everything else is an internal failure.
var (
	// ErrValidation rejects a request missing a required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an already-removed record; callers treat it as
	// idempotent success, concurrent removal is expected here.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable surfaces a transient store or provider outage. The
	// caller retries with backoff; we never retry internally.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrLockContention signals another instance is mid-commit with the same
	// pair. Not a failure: the scanner moves on to the next candidate.
	ErrLockContention = errors.New("pair lock held elsewhere")
	// ErrRoomTaken rejects a match create for a room that already has one.
	ErrRoomTaken = errors.New("room already has an active match")
)

// QueueStore is the durable waiting pool: username → ticket, ordered by join
// time within each state class.
type QueueStore interface {
	// Enqueue upserts a ticket, refreshing joinedAt when already present.
	Enqueue(ctx context.Context, ticket models.Ticket) error
	// Dequeue removes the user's ticket if present. The bool reports whether
	// a ticket was actually removed, which makes it usable as an atomic claim.
	Dequeue(ctx context.Context, userName string) (bool, error)
	// Get returns the user's ticket or nil when absent.
	Get(ctx context.Context, userName string) (*models.Ticket, error)
	// List snapshots tickets in the given state ("" for all), oldest first.
	List(ctx context.Context, state string) ([]models.Ticket, error)
	// Sweep removes and returns tickets older than maxAge.
	Sweep(ctx context.Context, maxAge time.Duration) ([]models.Ticket, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MatchTable is the source of truth for live pairings, keyed by room name.
type MatchTable interface {
	// Create fails with ErrRoomTaken when the room already has a match.
	Create(ctx context.Context, match models.Match) error
	// Get returns the match for a room or nil when absent.
	Get(ctx context.Context, roomName string) (*models.Match, error)
	// GetByUser answers "is this user already matched" with an O(k) scan.
	GetByUser(ctx context.Context, userName string) (*models.Match, error)
	// Remove deletes the match if present; removing a missing room is fine.
	Remove(ctx context.Context, roomName string) error
	List(ctx context.Context) ([]models.Match, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// CooldownLedger blocks recently-paired users from instant rematching.
type CooldownLedger interface {
	Record(ctx context.Context, a, b, kind string) error
	// Remaining returns how long the pair stays blocked, zero when free.
	Remaining(ctx context.Context, a, b string) (time.Duration, error)
	Clear(ctx context.Context, a, b string) error
	Count(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) error
}

// LockHandle releases one held pair lock.
type LockHandle interface {
	Release(ctx context.Context) error
}

// PairingLock is the short-TTL mutual exclusion keyed by an unordered user
// pair. It is the only hard mutual exclusion in the system.
type PairingLock interface {
	// TryAcquire returns ErrLockContention when the pair is locked by a live
	// holder; expired locks are taken over.
	TryAcquire(ctx context.Context, a, b string, ttl time.Duration) (LockHandle, error)
	Count(ctx context.Context) (int, error)
	// ClearStale removes expired locks, returning how many were dropped.
	ClearStale(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) error
}

// LeftBehindStore keeps per-user disconnect records.
type LeftBehindStore interface {
	Put(ctx context.Context, record models.LeftBehindRecord) error
	// Get returns the user's record or nil when absent.
	Get(ctx context.Context, userName string) (*models.LeftBehindRecord, error)
	Delete(ctx context.Context, userName string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
