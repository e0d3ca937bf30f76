package kv

import (
	"context"
	"time"
)

// Store is the durable key-value surface the engine needs: TTL'd
// values for revocation entries, session metadata and retired key
// material, plus an atomic windowed counter for rate limiting.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Increment atomically bumps the counter at key, starting a new
	// window of the given length when the key is created. It returns
	// the post-increment count and the time left in the window.
	// Increment-first semantics: the caller compares after the bump,
	// never before, so two concurrent calls cannot both slip under
	// the limit.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
