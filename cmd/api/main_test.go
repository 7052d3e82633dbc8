package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/tradematch/internal/config"
	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/matching"
	"github.com/onnwee/tradematch/internal/middleware"
	"github.com/onnwee/tradematch/internal/news"
)

const buyersCSV = `Buyer_ID,Country,Industry,Intent_Score,Engagement_Spike,Good_Payment_History,Prompt_Response,Preferred_Channel,Date
B1,Japan,Solar,1,1,1,1,Email,2025-05-30
B2,Germany,Solar,1,1,1,1,LinkedIn,2025-05-30
B3,Brazil,Textiles,0,0,0,0,,2020-01-01
`

const exportersCSV = `Exporter_ID,Industry,State,Manufacturing_Capacity_Tons
E1,Solar,Gujarat,2500
E2,Textiles,Punjab,0
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		return path
	}
	return &config.Config{
		Port:            0,
		Env:             "test",
		BuyersCSV:       write("buyers.csv", buyersCSV),
		ExportersCSV:    write("exporters.csv", exportersCSV),
		FeedbackStore:   config.StoreMemory,
		TopN:            config.DefaultTopN,
		RescoreInterval: config.DefaultRescoreInterval,
		SwipeRateLimit:  config.DefaultSwipeRateLimit,
		Feedback:        feedback.DefaultConfig(),
		News:            news.DefaultConfig(),
		MinComposite:    matching.DefaultConfig().MinComposite,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.close)

	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func postSwipe(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/swipes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/v1/swipes error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApp_SwipeThenRescore(t *testing.T) {
	a, srv := newTestApp(t, testConfig(t))
	ctx := context.Background()

	if err := a.warmDecks(ctx); err != nil {
		t.Fatalf("warmDecks() error = %v", err)
	}
	if _, ok, _ := a.decks.Get(ctx, "E1"); !ok {
		t.Fatal("expected warmed deck for E1")
	}

	resp := postSwipe(t, srv, `{"exporter_id":"E1","buyer_id":"B1","direction":"left"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("swipe status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if !a.tracker.IsDirty("E1") {
		t.Fatal("swipe should mark E1 dirty")
	}

	if n := a.rescore.RescoreNow(ctx); n != 1 {
		t.Errorf("RescoreNow() = %d, want 1", n)
	}
	if a.tracker.IsDirty("E1") {
		t.Error("E1 should be clean after rescore")
	}

	deckResp := get(t, srv, "/api/v1/exporters/E1/deck")
	if deckResp.StatusCode != http.StatusOK {
		t.Fatalf("deck status = %d, want 200", deckResp.StatusCode)
	}
	if src := deckResp.Header.Get("X-Deck-Source"); src != "cache" {
		t.Errorf("deck source = %q, want cache", src)
	}
	var deck matching.Deck
	if err := json.NewDecoder(deckResp.Body).Decode(&deck); err != nil {
		t.Fatalf("failed to decode deck: %v", err)
	}
	if deck.ExporterID != "E1" {
		t.Errorf("ExporterID = %q, want E1", deck.ExporterID)
	}
}

func TestApp_HealthAndMetrics(t *testing.T) {
	_, srv := newTestApp(t, testConfig(t))

	for _, path := range []string{"/health", "/ready"} {
		if resp := get(t, srv, path); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	get(t, srv, "/api/v1/exporters/E1/deck")
	postSwipe(t, srv, `{"exporter_id":"E1","buyer_id":"B2","direction":"right"}`)

	resp := get(t, srv, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	for _, want := range []string{
		middleware.MetricHTTPRequestsTotal,
		`path="/api/v1/exporters/{id}/deck"`,
		"tradematch_swipes_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestApp_SwipeRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.SwipeRateLimit = 2
	_, srv := newTestApp(t, cfg)

	body := `{"exporter_id":"E1","buyer_id":"B1","direction":"right"}`
	for i := 0; i < 2; i++ {
		if resp := postSwipe(t, srv, body); resp.StatusCode != http.StatusOK {
			t.Fatalf("swipe %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}
	resp := postSwipe(t, srv, body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third swipe status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Other endpoints are not limited
	if resp := get(t, srv, "/api/v1/exporters/E1/deck"); resp.StatusCode != http.StatusOK {
		t.Errorf("deck status = %d, want 200", resp.StatusCode)
	}
}

func TestApp_SQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.FeedbackStore = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "feedback.db")

	a, srv := newTestApp(t, cfg)
	if a.store.DB == nil {
		t.Fatal("expected a database handle for the sqlite store")
	}
	if _, ok := a.checkers()["database"]; !ok {
		t.Error("expected a database readiness check")
	}

	if resp := postSwipe(t, srv, `{"exporter_id":"E1","buyer_id":"B1","direction":"left"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("swipe status = %d, want 200", resp.StatusCode)
	}
	if resp := get(t, srv, "/ready"); resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}
}

func TestNewApp_MissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.BuyersCSV = filepath.Join(t.TempDir(), "missing.csv")

	if _, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected an error for a missing buyers file")
	}
}

func TestApp_SwipeIdempotencyKey(t *testing.T) {
	a, srv := newTestApp(t, testConfig(t))

	send := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/swipes",
			strings.NewReader(`{"exporter_id":"E1","buyer_id":"B1","direction":"left"}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.IdempotencyKeyHeader, "retry-1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST /api/v1/swipes error = %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := send(); resp.StatusCode != http.StatusOK {
			t.Fatalf("swipe %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	events, err := a.engine.Events(context.Background(), "E1")
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("recorded %d swipes, want 1 for a retried key", len(events))
	}
}
