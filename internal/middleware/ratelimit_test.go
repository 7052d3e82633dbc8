package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{name: "default", cfg: DefaultSwipeLimit()},
		{name: "zero requests", cfg: RateLimitConfig{WindowDuration: time.Second}, wantErr: true},
		{name: "zero window", cfg: RateLimitConfig{RequestsPerWindow: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRateLimitStore_Window(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, _, _ := store.Allow(ctx, "ip:1", cfg); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter, err := store.Allow(ctx, "ip:1", cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third request should be blocked")
	}
	if retryAfter != 60 {
		t.Errorf("retryAfter = %d, want 60", retryAfter)
	}

	// Other keys are independent.
	if allowed, _, _ := store.Allow(ctx, "ip:2", cfg); !allowed {
		t.Error("different key should be allowed")
	}

	// A new window resets the count.
	now = now.Add(time.Minute)
	if allowed, _, _ := store.Allow(ctx, "ip:1", cfg); !allowed {
		t.Error("request in new window should be allowed")
	}

	now = now.Add(2 * time.Minute)
	store.Cleanup()
	if len(store.buckets) != 0 {
		t.Errorf("Cleanup() left %d buckets", len(store.buckets))
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, RateLimitConfig) (bool, int, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	t.Run("blocks over limit", func(t *testing.T) {
		handler := RateLimiter(NewInMemoryRateLimitStore(), cfg, IPKeyFunc(), NewMetrics())(ok)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/swipes", nil)
		req.RemoteAddr = "10.0.0.1:5000"

		first := httptest.NewRecorder()
		handler.ServeHTTP(first, req)
		if first.Code != http.StatusOK {
			t.Fatalf("first request status = %d, want 200", first.Code)
		}

		second := httptest.NewRecorder()
		handler.ServeHTTP(second, req)
		if second.Code != http.StatusTooManyRequests {
			t.Fatalf("second request status = %d, want 429", second.Code)
		}
		if retry, err := strconv.Atoi(second.Header().Get("Retry-After")); err != nil || retry < 1 {
			t.Errorf("Retry-After = %q, want positive seconds", second.Header().Get("Retry-After"))
		}
		if second.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("expected X-RateLimit-Reset header")
		}
	})

	t.Run("fails open on store error", func(t *testing.T) {
		handler := RateLimiter(failingStore{}, cfg, IPKeyFunc(), nil)(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/swipes", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8"}, remote: "9.9.9.9:1", want: "ip:1.2.3.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "4.3.2.1"}, remote: "9.9.9.9:1", want: "ip:4.3.2.1"},
		{name: "remote addr", remote: "9.9.9.9:1234", want: "ip:9.9.9.9"},
		{name: "ipv6 remote", remote: "[::1]:80", want: "ip:::1"},
		{name: "no port", remote: "9.9.9.9", want: "ip:9.9.9.9"},
	}

	keyFunc := IPKeyFunc()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestRedisRateLimitStore_Allow requires a Redis instance (REDIS_URL or localhost:6379).
func TestRedisRateLimitStore_Allow(t *testing.T) {
	opts := &redis.Options{Addr: "localhost:6379"}
	if url := os.Getenv("REDIS_URL"); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("invalid REDIS_URL: %v", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}

	store := NewRedisRateLimitStore(client, "tradematch:test:ratelimit")
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	key := "ip:test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { client.Del(context.Background(), "tradematch:test:ratelimit:"+key) })

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow(context.Background(), key, cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter, err := store.Allow(context.Background(), key, cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("fourth request should be blocked")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want 1..60", retryAfter)
	}
}
