package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// quietPrefixes are polled by probes and scrapers and only logged when they fail.
var quietPrefixes = []string{"/health/", "/metrics"}

// Logging writes one access line per request when it completes. Handler
// errors are already logged by the response writer, so a 5xx here is only a
// Warn carrying the request shape.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			if status < http.StatusInternalServerError && quiet(r.URL.Path) {
				return
			}
			fields := map[string]any{
				"status":        status,
				"duration_ms":   time.Since(start).Milliseconds(),
				"response_size": rec.bytes,
			}
			if pattern := routePattern(r); pattern != "" {
				fields["route"] = pattern
			}
			ctx = logg.WithFields(ctx, fields)
			if status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request failed")
				return
			}
			logg.Info(ctx, "request complete")
		})
	}
}

func quiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
