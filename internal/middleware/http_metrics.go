package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are recorded as-is.
var staticRoutes = map[string]bool{
	"/":              true,
	"/api/v1/swipes": true,
	"/health":        true,
	"/ready":         true,
	"/metrics":       true,
}

// exporterSubroutes are the known suffixes under /api/v1/exporters/{id}/.
var exporterSubroutes = map[string]bool{
	"deck":    true,
	"deck/ws": true,
	"swipes":  true,
}

// NormalizePath converts paths with dynamic segments to route patterns to prevent
// cardinality explosion in metrics and span names. /api/v1/exporters/EXP1/deck maps to
// /api/v1/exporters/{id}/deck.
func NormalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	const exporters = "/api/v1/exporters/"
	if !strings.HasPrefix(path, exporters) {
		// Unknown paths are collapsed so scanners cannot create series
		return "/other"
	}

	rest := strings.Trim(strings.TrimPrefix(path, exporters), "/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "/other"
	}
	if len(parts) == 1 {
		return exporters + "{id}"
	}

	sub := parts[1]
	if exporterSubroutes[sub] {
		return exporters + "{id}/" + sub
	}
	// /api/v1/exporters/{id}/buyers/{buyer_id}/swipe-state
	if segs := strings.Split(sub, "/"); len(segs) == 3 && segs[0] == "buyers" && segs[2] == "swipe-state" {
		return exporters + "{id}/buyers/{buyer_id}/swipe-state"
	}
	return "/other"
}

// Route families used as the family metric label.
const (
	FamilyDeck     = "deck"
	FamilySwipes   = "swipes"
	FamilyExporter = "exporter"
	FamilyOps      = "ops"
	FamilyOther    = "other"
)

// RouteFamily maps a normalized path to the workflow it belongs to, so dashboards can
// compare deck reads against swipe writes without listing every route.
func RouteFamily(normalized string) string {
	switch normalized {
	case "/api/v1/exporters/{id}/deck", "/api/v1/exporters/{id}/deck/ws":
		return FamilyDeck
	case "/api/v1/swipes", "/api/v1/exporters/{id}/swipes", "/api/v1/exporters/{id}/buyers/{buyer_id}/swipe-state":
		return FamilySwipes
	case "/api/v1/exporters/{id}":
		return FamilyExporter
	case "/", "/health", "/ready", "/metrics":
		return FamilyOps
	}
	return FamilyOther
}

func isHealthPath(path string) bool {
	return path == "/health" || path == "/ready"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	if !mrw.wroteHeader {
		mrw.WriteHeader(http.StatusOK)
	}
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// Hijack passes WebSocket upgrades through to the underlying writer.
func (mrw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := mrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	// The connection now belongs to the handler; record it as switching protocols
	mrw.statusCode = http.StatusSwitchingProtocols
	mrw.wroteHeader = true
	return h.Hijack()
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health endpoints (/health, /ready) are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				NormalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
