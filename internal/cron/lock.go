package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/instance"
)

const defaultLeaseTTL = 30 * time.Minute

// Lock keeps two cron workers from sweeping the same orders at once.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ForgetIfHeld(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a single-key lease in Redis. Each Acquire writes a fresh
// holder token and Release only deletes the key while it still carries that
// token: a worker that overran its TTL cannot free a lease another worker
// has since taken.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token func() string

	mu   sync.Mutex
	held string
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl, token: holderToken}, nil
}

// holderToken names the process in the lease so an operator can tell which
// replica is sweeping.
func holderToken() string {
	return instance.GetID() + ":" + uuid.NewString()
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.token()
	won, err := l.store.Claim(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.mu.Lock()
		l.held = token
		l.mu.Unlock()
	}
	return won, nil
}

// Release is a no-op when this lock holds nothing. The local token is dropped
// even when Redis fails; the TTL then frees the key.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.held
	l.held = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.ForgetIfHeld(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
