package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string // Explicit origins; wildcards are not supported
	AllowedMethods   []string // Default: GET, POST, OPTIONS
	AllowedHeaders   []string // Default: Content-Type, X-Request-ID
	AllowCredentials bool
	MaxAge           int // Preflight cache duration in seconds
}

// originSet is the normalized allowlist.
type originSet map[string]bool

func newOriginSet(origins []string) originSet {
	set := make(originSet)
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			set[origin] = true
		}
	}
	return set
}

// OriginChecker returns a function suitable for websocket.Upgrader.CheckOrigin.
// With no configured origins only same-origin (or origin-less) requests pass.
func (cfg CORSConfig) OriginChecker() func(r *http.Request) bool {
	allowed := newOriginSet(cfg.AllowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// With an empty AllowedOrigins list the middleware is a pass-through.
// Requests from origins outside the allowlist are rejected with 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowed := newOriginSet(cfg.AllowedOrigins)

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", RequestIDHeader}
	}
	allowedMethods := strings.Join(methods, ", ")
	allowedHeaders := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed[origin] {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Methods", allowedMethods)
			h.Set("Access-Control-Allow-Headers", allowedHeaders)

			if r.Method == http.MethodOptions {
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
