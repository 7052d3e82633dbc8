package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/news"
	"github.com/onnwee/tradematch/internal/ranking"
	"github.com/onnwee/tradematch/internal/trade"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func strongBuyer(id, industry string) trade.Buyer {
	return trade.Buyer{
		ID:                  id,
		Country:             "Japan",
		Industry:            industry,
		IntentScore:         1,
		EngagementSpike:     1,
		FundingEvent:        1,
		DecisionMakerChange: 1,
		HiringGrowth:        1,
		NormProfileVisits:   1,
		GoodPayment:         1,
		PromptResponse:      1,
		RecencyWeight:       1,
		DataCompleteness:    1,
		Channel:             "Email",
		ActivityTier:        trade.ActivityHigh,
	}
}

// dormantBuyer has no fresh activity signals, so swipe penalties are not lifted by
// signal recovery.
func dormantBuyer(id, country string) trade.Buyer {
	b := strongBuyer(id, "Solar")
	b.Country = country
	b.FundingEvent = 0
	b.DecisionMakerChange = 0
	b.HiringGrowth = 0
	return b
}

// staleBuyer has zero recency, which zeroes its composite.
func staleBuyer(id string) trade.Buyer {
	b := strongBuyer(id, "Solar")
	b.RecencyWeight = 0
	return b
}

type fixture struct {
	catalog  *Catalog
	engine   *feedback.Engine
	orch     *Orchestrator
	exporter trade.Exporter
}

func newFixture(t *testing.T, buyers []trade.Buyer, cfg Config, withFeedback bool) fixture {
	t.Helper()

	exporter := trade.Exporter{ID: "EXP_1", Industry: "Solar", State: "Gujarat"}
	catalog := NewCatalog(buyers, []trade.Exporter{exporter, {ID: "EXP_2", Industry: "Textiles", State: "Punjab"}}, nil, news.DefaultConfig())

	scorer, err := ranking.NewScorer(nil)
	if err != nil {
		t.Fatal(err)
	}
	scorer = scorer.WithClock(func() time.Time { return testNow })

	var engine *feedback.Engine
	if withFeedback {
		engine, err = feedback.NewEngine(feedback.NewInMemoryRepository(), feedback.EngineConfig{
			Now:    func() time.Time { return testNow },
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	orch, err := NewOrchestrator(OrchestratorConfig{
		Scorer:   scorer,
		Catalog:  catalog,
		Feedback: engine,
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	return fixture{catalog: catalog, engine: engine, orch: orch, exporter: exporter}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	scorer, _ := ranking.NewScorer(nil)
	catalog := NewCatalog(nil, nil, nil, news.DefaultConfig())

	tests := []struct {
		name string
		cfg  OrchestratorConfig
		want error
	}{
		{"missing scorer", OrchestratorConfig{Catalog: catalog, Config: DefaultConfig()}, ErrNilScorer},
		{"missing catalog", OrchestratorConfig{Scorer: scorer, Config: DefaultConfig()}, ErrNilCatalog},
		{"bad top n", OrchestratorConfig{Scorer: scorer, Catalog: catalog, Config: Config{TopN: 0}}, ErrInvalidTopN},
		{"bad min composite", OrchestratorConfig{Scorer: scorer, Catalog: catalog, Config: Config{TopN: 1, MinComposite: 2}}, ErrInvalidMinComposite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOrchestrator(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRank_OrdersAndFilters(t *testing.T) {
	buyers := []trade.Buyer{
		strongBuyer("B_TEX", "Textiles"),
		staleBuyer("B_STALE"),
		strongBuyer("B_SOLAR", "Solar"),
		strongBuyer("B_ELEC", "Electronics"),
	}
	f := newFixture(t, buyers, DefaultConfig(), false)

	deck, err := f.orch.Rank(context.Background(), f.exporter, buyers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	wantOrder := []string{"B_SOLAR", "B_ELEC", "B_TEX"}
	if len(deck.TopMatches) != len(wantOrder) {
		t.Fatalf("expected %d matches, got %d", len(wantOrder), len(deck.TopMatches))
	}
	for i, id := range wantOrder {
		if deck.TopMatches[i].BuyerID != id {
			t.Errorf("position %d: got %s, want %s", i, deck.TopMatches[i].BuyerID, id)
		}
	}

	if deck.Stats.Pairs != 4 || deck.Stats.BelowThreshold != 1 || deck.Stats.Matches != 3 {
		t.Errorf("unexpected stats %+v", deck.Stats)
	}
	if deck.TotalMatches != 3 || deck.ExporterID != "EXP_1" || deck.State != "Gujarat" {
		t.Errorf("unexpected deck header %+v", deck)
	}
	if !deck.GeneratedAt.Equal(testNow) {
		t.Errorf("generated at = %v", deck.GeneratedAt)
	}

	top := deck.TopMatches[0]
	if math.Abs(top.Composite-1.0) > 1e-9 || top.Tier != "Hot Match" {
		t.Errorf("top match = %f %q", top.Composite, top.Tier)
	}
	if top.Buyer.Country != "Japan" || top.Buyer.Channel != "Email" || top.Buyer.ActivityTier != trade.ActivityHigh {
		t.Errorf("unexpected display %+v", top.Buyer)
	}
}

func TestRank_TopNAndStableTies(t *testing.T) {
	var buyers []trade.Buyer
	for i := 0; i < 15; i++ {
		buyers = append(buyers, strongBuyer(fmt.Sprintf("B%02d", i), "Solar"))
	}
	cfg := DefaultConfig()
	f := newFixture(t, buyers, cfg, false)

	deck, err := f.orch.Rank(context.Background(), f.exporter, buyers)
	if err != nil {
		t.Fatal(err)
	}
	if len(deck.TopMatches) != cfg.TopN {
		t.Fatalf("expected %d matches, got %d", cfg.TopN, len(deck.TopMatches))
	}
	if deck.Stats.Matches != 15 {
		t.Errorf("stats should count all valid matches, got %d", deck.Stats.Matches)
	}
	for i, m := range deck.TopMatches {
		if want := fmt.Sprintf("B%02d", i); m.BuyerID != want {
			t.Errorf("tie order broken at %d: got %s, want %s", i, m.BuyerID, want)
		}
	}

	got := deck.Limit(3)
	if len(got.TopMatches) != 3 || len(deck.TopMatches) != cfg.TopN {
		t.Errorf("Limit should truncate a copy")
	}
	if got.TotalMatches != 3 || deck.TotalMatches != cfg.TopN {
		t.Errorf("TotalMatches = %d (original %d), want 3 (%d)", got.TotalMatches, deck.TotalMatches, cfg.TopN)
	}
}

func TestRank_AppliesFeedback(t *testing.T) {
	ctx := context.Background()
	hidden := dormantBuyer("B_HIDDEN", "Brazil")
	penalized := dormantBuyer("B_PEN", "Chile")
	buyers := []trade.Buyer{hidden, penalized, strongBuyer("B_OK", "Solar")}

	f := newFixture(t, buyers, DefaultConfig(), true)

	for i := 0; i < 5; i++ {
		if _, err := f.engine.ProcessSwipe(ctx, f.exporter.ID, hidden, feedback.Left); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.engine.ProcessSwipe(ctx, f.exporter.ID, penalized, feedback.Left); err != nil {
		t.Fatal(err)
	}

	deck, err := f.orch.Rank(ctx, f.exporter, buyers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	if deck.Stats.Suppressed != 1 {
		t.Errorf("expected one suppressed pair, got %d", deck.Stats.Suppressed)
	}
	if len(deck.TopMatches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(deck.TopMatches))
	}
	if deck.TopMatches[0].BuyerID != "B_OK" || deck.TopMatches[1].BuyerID != "B_PEN" {
		t.Errorf("unexpected order %s, %s", deck.TopMatches[0].BuyerID, deck.TopMatches[1].BuyerID)
	}
	// Intent without funding, decision-maker or hiring signals is 0.55, so the
	// unpenalized composite is 0.865.
	pen := deck.TopMatches[1]
	if math.Abs(pen.SwipePenalty-0.6) > 1e-9 || math.Abs(pen.Composite-0.865*0.6) > 1e-9 {
		t.Errorf("penalized match = %f penalty, %f composite", pen.SwipePenalty, pen.Composite)
	}
}

func TestRankExporter_Unknown(t *testing.T) {
	f := newFixture(t, nil, DefaultConfig(), false)
	if _, err := f.orch.RankExporter(context.Background(), "nope"); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("expected ErrUnknownExporter, got %v", err)
	}
}

func TestRun_PreservesExporterOrder(t *testing.T) {
	buyers := []trade.Buyer{strongBuyer("B1", "Solar"), strongBuyer("B2", "Textiles")}
	cfg := DefaultConfig()
	cfg.Workers = 3
	f := newFixture(t, buyers, cfg, true)

	var exporters []trade.Exporter
	for i := 0; i < 20; i++ {
		industry := "Solar"
		if i%2 == 1 {
			industry = "Textiles"
		}
		exporters = append(exporters, trade.Exporter{ID: fmt.Sprintf("E%02d", i), Industry: industry})
	}

	decks, err := f.orch.Run(context.Background(), exporters, buyers)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(decks) != len(exporters) {
		t.Fatalf("expected %d decks, got %d", len(exporters), len(decks))
	}
	for i, d := range decks {
		if d.ExporterID != exporters[i].ID {
			t.Errorf("deck %d: got %s, want %s", i, d.ExporterID, exporters[i].ID)
		}
		wantTop := "B1"
		if exporters[i].Industry == "Textiles" {
			wantTop = "B2"
		}
		if len(d.TopMatches) == 0 || d.TopMatches[0].BuyerID != wantTop {
			t.Errorf("deck %s: unexpected top match", d.ExporterID)
		}
	}
}

func TestRun_CanceledContext(t *testing.T) {
	buyers := []trade.Buyer{strongBuyer("B1", "Solar")}
	f := newFixture(t, buyers, DefaultConfig(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.orch.Run(ctx, f.catalog.Exporters(), buyers); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
