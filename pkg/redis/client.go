// Package redis holds the short-lived coordination state of the storefront:
// replayable request results, delivery claims, rate-limit windows and the
// cron lease. Nothing stored here is a source of truth; losing it only costs
// duplicate work that the database CAS transitions already absorb.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// KeyKind is the second segment of every key, after the namespace.
type KeyKind string

const (
	KindIdempotency KeyKind = "idempotency"
	KindRateLimit   KeyKind = "rate_limit"
	KindLock        KeyKind = "lock"
)

const defaultNamespace = "sf"

// ErrNotInitialized is returned by every call on a zero Client.
var ErrNotInitialized = errors.New("redis client not initialized")

const (
	// forgetIfHeld deletes KEYS[1] only while it still holds ARGV[1].
	forgetIfHeld = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

	// hitWindow counts one hit and starts the window on the first one. It
	// returns the count and the remaining window in milliseconds.
	hitWindow = `local n = redis.call("INCR", KEYS[1])
if n == 1 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end
return {n, redis.call("PTTL", KEYS[1])}`
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// ClaimStore is the surface shared by delivery guards and the request replay
// cache.
type ClaimStore interface {
	Key(kind KeyKind, parts ...string) string
	Lookup(ctx context.Context, key string) (string, bool, error)
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Store(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, keys ...string) error
}

type Client struct {
	cmd       cmdable
	raw       *redis.Client
	namespace string
}

// New dials Redis from either a URL or an address and pings it once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{cmd: raw, raw: raw, namespace: defaultNamespace}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	// values in the URL win over the pool settings from env
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

// Key joins the namespace, kind and non-empty parts with ':'.
func (c *Client) Key(kind KeyKind, parts ...string) string {
	ns := defaultNamespace
	if c != nil && c.namespace != "" {
		ns = c.namespace
	}
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, ns, string(kind))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, ":")
}

// Lookup returns the value at key and whether it existed.
func (c *Client) Lookup(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.cmd == nil {
		return "", false, ErrNotInitialized
	}
	value, err := c.cmd.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Claim writes value only when key is absent and reports whether it did.
func (c *Client) Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, ErrNotInitialized
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

// Store overwrites key unconditionally.
func (c *Client) Store(ctx context.Context, key, value string, ttl time.Duration) error {
	if c == nil || c.cmd == nil {
		return ErrNotInitialized
	}
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Forget(ctx context.Context, keys ...string) error {
	if c == nil || c.cmd == nil {
		return ErrNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.cmd.Del(ctx, keys...).Err()
}

// ForgetIfHeld deletes key only while it still stores value, so a holder whose
// TTL lapsed cannot free a claim someone else now owns.
func (c *Client) ForgetIfHeld(ctx context.Context, key, value string) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, ErrNotInitialized
	}
	deleted, err := c.cmd.Eval(ctx, forgetIfHeld, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

// Hit counts one event in the fixed window at key and returns the running
// count plus the time left in the window.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if c == nil || c.cmd == nil {
		return 0, 0, ErrNotInitialized
	}
	if window <= 0 {
		return 0, 0, fmt.Errorf("window must be positive, got %s", window)
	}
	values, err := c.cmd.Eval(ctx, hitWindow, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected window reply %v", values)
	}
	remaining := time.Duration(values[1]) * time.Millisecond
	if remaining < 0 {
		remaining = window
	}
	return values[0], remaining, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.cmd == nil {
		return ErrNotInitialized
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
