package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type fakeCmdable struct {
	data    map[string]string
	expires map[string]time.Duration
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{data: map[string]string{}, expires: map[string]time.Duration{}}
}

func (f *fakeCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCmdable) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	f.expires[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
		delete(f.expires, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected arity"))
	}
	key := keys[0]
	switch script {
	case forgetIfHeld:
		if v, ok := f.data[key]; ok && v == fmt.Sprint(args[0]) {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case hitWindow:
		n, _ := strconv.ParseInt(f.data[key], 10, 64)
		n++
		f.data[key] = strconv.FormatInt(n, 10)
		if n == 1 {
			f.expires[key] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult([]any{n, f.expires[key].Milliseconds()}, nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script"))
}

func TestKeyJoinsNamespaceKindAndParts(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sf:idempotency:stripe-webhook:evt_1", client.Key(KindIdempotency, "stripe-webhook", "evt_1"))
	assert.Equal(t, "sf:lock:cron-prod", client.Key(KindLock, " cron-prod "))
	assert.Equal(t, "sf:rate_limit", client.Key(KindRateLimit, "", " "))

	custom := &Client{namespace: "staging"}
	assert.Equal(t, "staging:lock:cron", custom.Key(KindLock, "cron"))
}

func TestClaimLookupForget(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{cmd: fake}
	key := client.Key(KindIdempotency, "processed:stripe-webhook", "evt_123")

	_, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	won, err := client.Claim(ctx, key, "2026-01-05T00:00:00Z", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, time.Hour, fake.expires[key])

	won, err = client.Claim(ctx, key, "later", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	value, found, err := client.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2026-01-05T00:00:00Z", value)

	require.NoError(t, client.Forget(ctx, key))
	won, err = client.Claim(ctx, key, "again", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	require.NoError(t, client.Forget(ctx))
}

func TestStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCmdable()}

	_, err := client.Claim(ctx, "k", "pending", time.Minute)
	require.NoError(t, err)
	require.NoError(t, client.Store(ctx, "k", "done", time.Hour))

	value, _, err := client.Lookup(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestForgetIfHeldOnlyRemovesOwnedKeys(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{cmd: fake}

	ok, err := client.Claim(ctx, "sf:lock:cron", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := client.ForgetIfHeld(ctx, "sf:lock:cron", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = client.ForgetIfHeld(ctx, "sf:lock:cron", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, fake.data, "sf:lock:cron")
}

func TestHitCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{cmd: fake}

	count, remaining, err := client.Hit(ctx, "sf:rate_limit:user:cart", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, remaining)

	count, _, err = client.Hit(ctx, "sf:rate_limit:user:cart", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, _, err = client.Hit(ctx, "sf:rate_limit:user:cart", 0)
	assert.Error(t, err)
}

func TestZeroClientReportsNotInitialized(t *testing.T) {
	ctx := context.Background()
	client := &Client{}

	assert.ErrorIs(t, client.Ping(ctx), ErrNotInitialized)
	_, _, err := client.Lookup(ctx, "k")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = client.Claim(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)
}
