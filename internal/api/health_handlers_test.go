package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/tradematch/internal/health"
)

func failing(err error) health.Checker {
	return health.CheckerFunc(func(context.Context) error { return err })
}

func passing() health.Checker {
	return health.CheckerFunc(func(context.Context) error { return nil })
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth_Success(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %s", resp.Status)
	}
	if resp.Checks["runtime"] != "ok" {
		t.Errorf("expected runtime check to be 'ok', got %s", resp.Checks["runtime"])
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp is not valid RFC3339: %v", err)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	for _, fn := range []http.HandlerFunc{handlers.Health, handlers.Ready} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodPost, "/health", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", w.Code)
		}
		if w.Header().Get("Allow") != http.MethodGet {
			t.Errorf("expected Allow: GET, got %q", w.Header().Get("Allow"))
		}
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]health.Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok"},
		},
		{
			name:       "all healthy",
			checkers:   map[string]health.Checker{"database": passing(), "redis": passing()},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "metrics": "ok"},
		},
		{
			name:       "database down",
			checkers:   map[string]health.Checker{"database": failing(errors.New("connection refused")), "redis": passing()},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "error", "redis": "ok"},
		},
		{
			name:       "nil checker ignored",
			checkers:   map[string]health.Checker{"redis": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewHealthHandlers(HealthHandlersConfig{Checkers: tt.checkers})

			w := httptest.NewRecorder()
			handlers.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			resp := decodeHealth(t, w)
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, resp.Checks[name], want)
				}
			}
			if _, ok := resp.Checks["redis"]; ok && tt.checkers["redis"] == nil {
				t.Error("nil checker should not be reported")
			}
			wantStatus := "healthy"
			if tt.wantStatus != http.StatusOK {
				wantStatus = "unhealthy"
			}
			if resp.Status != wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, wantStatus)
			}
		})
	}
}
