// Package cache provides the key-value cache used for session lookups and
// shared counters.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key does not exist.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("cache unavailable")
)

type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	// Increment bumps a counter and returns the new value. The expiry is set
	// on the first increment of a window only.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Nop is a Cache that stores nothing. Every Get misses and counters never
// advance past zero.
type Nop struct{}

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Nop) Delete(context.Context, ...string) error { return nil }

func (Nop) Increment(context.Context, string, time.Duration) (int64, error) { return 0, nil }
