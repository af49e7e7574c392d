package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS applies the storefront origin allow-list. Replay and request-id
// headers are exposed so browser clients can read them.
func CORS(origins []string) func(http.Handler) http.Handler {
	policy := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			IdempotencyKeyHeader, CartSessionHeader, requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, IdempotentReplayedHeader},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeSeconds,
	}
	return cors.Handler(policy)
}
