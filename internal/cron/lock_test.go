package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/instance"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	delErr error
}

func (m *memoryRedis) Claim(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.values == nil {
		m.values = map[string]string{}
		m.ttls = map[string]time.Duration{}
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) ForgetIfHeld(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryRedis{}
	first, err := NewRedisLock(store, "sf:lock:cron:test", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sf:lock:cron:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, store.ttls["sf:lock:cron:test"])

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	assert.Contains(t, store.values, "sf:lock:cron:test")

	require.NoError(t, first.Release(context.Background()))
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseLeavesForeignLease(t *testing.T) {
	store := &memoryRedis{}
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and was taken by another worker
	store.values["k"] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "someone-else", store.values["k"])
}

func TestRedisLockReleaseReportsStoreErrors(t *testing.T) {
	store := &memoryRedis{}
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLeaseTTL, lock.ttl)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	store.delErr = errors.New("i/o timeout")
	assert.ErrorIs(t, lock.Release(context.Background()), store.delErr)

	// the token is dropped either way so a second release is a no-op
	assert.NoError(t, lock.Release(context.Background()))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(&memoryRedis{}, "", 0)
	require.Error(t, err)
}

func TestRedisLockTokenNamesInstance(t *testing.T) {
	store := &memoryRedis{}
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(store.values["k"], instance.GetID()+":"))

	lock.token = func() string { return "fixed" }
	require.NoError(t, lock.Release(context.Background()))
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fixed", store.values["k"])
}
