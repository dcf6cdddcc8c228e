// Package lock provides cross-instance mutual exclusion on top of a networked
// key/value store that supports atomic set-if-absent with expiry.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onurcolak/collections-worker/pkg/logger"
)

// store is the capability the coordinator needs from the coordination store.
// pkg/redis.Client satisfies it.
type store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Coordinator hands out self-expiring locks. At most one holder exists per key
// while the TTL runs; a crashed holder's lock expires on its own.
type Coordinator struct {
	store    store
	newToken func() string

	mu     sync.Mutex
	tokens map[string]string
}

func NewCoordinator(s store) *Coordinator {
	return &Coordinator{
		store:    s,
		newToken: uuid.NewString,
		tokens:   make(map[string]string),
	}
}

// Acquire sets key if absent with the given TTL. A false result means another
// holder owns the key; callers must not retry within the same invocation.
func (c *Coordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lock ttl must be positive, got %v", ttl)
	}

	token := c.newToken()

	ok, err := c.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()

	logger.Debugf("Acquired lock %s (ttl %v)", key, ttl)

	return true, nil
}

// Release deletes key if this coordinator still holds it. Releasing a lock that
// already expired, or was never held, is a no-op.
func (c *Coordinator) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	deleted, err := c.store.DeleteIfEquals(ctx, key, token)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if !deleted {
		logger.Warnf("Lock %s expired before release", key)
	}

	return nil
}

// IsHeld reports whether anyone currently holds key. Diagnostic only.
func (c *Coordinator) IsHeld(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, key)
}
