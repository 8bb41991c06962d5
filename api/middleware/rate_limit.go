package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type windowCounter interface {
	Key(kind pkgredis.KeyKind, parts ...string) string
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitPolicy names a throttled surface (cart, checkout, returns) and its
// per-window budgets. A zero limit disables that dimension.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	ipLimit   int
	userLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "api"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, userLimit: userLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.userLimit > 0)
}

type rateDimension struct {
	scope string
	value string
	limit int
}

func (p RateLimitPolicy) dimensions(r *http.Request) []rateDimension {
	return []rateDimension{
		{scope: "user", value: UserIDFromContext(r.Context()), limit: p.userLimit},
		{scope: "ip", value: clientIP(r), limit: p.ipLimit},
	}
}

// RateLimit counts each request against the caller's user id and IP in a
// fixed window. Mount it after Auth so the user dimension is populated;
// anonymous requests are only counted by IP.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, dim := range policy.dimensions(r) {
				if dim.limit <= 0 || dim.value == "" {
					continue
				}
				key := counter.Key(pkgredis.KindRateLimit, policy.name, dim.scope, dim.value)
				count, remaining, err := counter.Hit(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit unavailable"))
					return
				}
				if count > int64(dim.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":   policy.name,
							"scope":    dim.scope,
							"attempts": count,
							"limit":    dim.limit,
						}), "rate limit exceeded")
					}
					w.Header().Set("Retry-After", retryAfterSeconds(remaining, policy.window))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, retry later"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds the remaining window up to whole seconds, falling
// back to the full window when Redis reported none.
func retryAfterSeconds(remaining, window time.Duration) string {
	if remaining <= 0 {
		remaining = window
	}
	return strconv.Itoa(int(math.Ceil(remaining.Seconds())))
}

// clientIP prefers the left-most X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
