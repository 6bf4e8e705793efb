package domain

import (
	"context"
	"time"
)

// BetCache provides fast read access to recently fetched bet records for the
// discovery endpoints. Cached copies may lag the store by the TTL; the
// settlement path never reads through the cache.
type BetCache interface {
	Set(ctx context.Context, b Bet) error
	Get(ctx context.Context, id int64) (Bet, error)
	Invalidate(ctx context.Context, id int64) error
}

// LockManager provides distributed mutual exclusion so that multiple service
// instances serialize mutations on the same bet.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function. It fails with ErrLockHeld when another party holds
	// the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces request rate limits keyed by an arbitrary string.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries settlement events between services, the WebSocket hub,
// and the notifier. Publish is best effort; services log and continue when
// it fails.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
