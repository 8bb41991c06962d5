package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const localOrigin = "http://localhost:3000"

// CORS allows the storefront frontend (and the local dev server) to call the
// API from the browser.
func CORS(appURL string, dev bool) func(http.Handler) http.Handler {
	origins := []string{}
	if appURL != "" {
		origins = append(origins, appURL)
	}
	if dev || len(origins) == 0 {
		origins = append(origins, localOrigin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
