// Package idempotency records which external deliveries were already handled.
// Both the Stripe webhook endpoint and the notification consumer claim a
// delivery id before doing side effects and release it when the work fails,
// so the provider's redelivery gets another attempt.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Store is the slice of pkg/redis a Guard needs.
type Store interface {
	Key(kind redis.KeyKind, parts ...string) string
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, keys ...string) error
}

// Manager owns the store and TTL shared by every scoped Guard.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Scope returns a Guard whose keys live under sf:idempotency:processed:<name>.
func (m *Manager) Scope(name string) (*Guard, error) {
	if name == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{manager: m, scope: "processed:" + name}, nil
}

// Guard claims delivery ids within one scope.
type Guard struct {
	manager *Manager
	scope   string
}

// CheckAndMark reports whether id was already claimed. When it was not, the id
// is claimed for the manager TTL and the claim time is stored as the value.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := g.key(id)
	if err != nil {
		return false, err
	}
	claimedAt := g.manager.now().UTC().Format(time.RFC3339)
	set, err := g.manager.store.Claim(ctx, key, claimedAt, g.manager.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !set, nil
}

// Delete releases a claim so a redelivery is processed again.
func (g *Guard) Delete(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.manager.store.Forget(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	if id == "" {
		return "", errors.New("event id is required")
	}
	return g.manager.store.Key(redis.KindIdempotency, g.scope, id), nil
}
