package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCache provides fast market lookups for read paths.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, addr common.Address) (Market, error)
	Invalidate(ctx context.Context, addr common.Address) error
}

// RateLimiter provides request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides non-blocking exclusive locks. Acquire fails with
// ErrLockHeld when another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for shop events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
