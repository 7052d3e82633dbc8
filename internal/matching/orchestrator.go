package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/ranking"
	"github.com/onnwee/tradematch/internal/tracing"
	"github.com/onnwee/tradematch/internal/trade"
)

// Errors returned by the orchestrator.
var (
	ErrNilScorer       = errors.New("scorer is required")
	ErrNilCatalog      = errors.New("catalog is required")
	ErrUnknownExporter = errors.New("unknown exporter")
)

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Scorer  *ranking.Scorer
	Catalog *Catalog
	// Feedback is optional; without it every pair scores with neutral penalties.
	Feedback *feedback.Engine
	Config   Config
	Logger   *slog.Logger
	Metrics  *Metrics
	// Now overrides the deck timestamp clock.
	Now func() time.Time
}

// Orchestrator builds ranked decks.
type Orchestrator struct {
	scorer   *ranking.Scorer
	catalog  *Catalog
	feedback *feedback.Engine
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewOrchestrator validates cfg and returns an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Scorer == nil {
		return nil, ErrNilScorer
	}
	if cfg.Catalog == nil {
		return nil, ErrNilCatalog
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		scorer:   cfg.Scorer,
		catalog:  cfg.Catalog,
		feedback: cfg.Feedback,
		cfg:      cfg.Config,
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      now,
	}, nil
}

// Catalog returns the catalog the orchestrator ranks against.
func (o *Orchestrator) Catalog() *Catalog {
	return o.catalog
}

// Rank scores buyers for one exporter and returns its deck.
//
// Feedback is read from a single snapshot, so concurrent swipes land either wholly
// before or wholly after this ranking. Suppressed buyers and pairs below MinComposite
// are skipped. Matches are ordered by composite score descending; equal scores keep
// the input buyer order.
func (o *Orchestrator) Rank(ctx context.Context, exporter trade.Exporter, buyers []trade.Buyer) (deck Deck, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "matching.rank")
	defer func() {
		endSpan(err)
		o.observe(start, deck, err)
	}()
	tracing.SetAttributes(ctx,
		attribute.String("exporter.id", exporter.ID),
		attribute.Int("buyers.count", len(buyers)),
	)

	var snap *feedback.Snapshot
	if o.feedback != nil {
		snap, err = o.feedback.Snapshot(ctx, exporter.ID)
		if err != nil {
			return Deck{}, fmt.Errorf("failed to snapshot feedback for %s: %w", exporter.ID, err)
		}
	}

	overlay := o.catalog.Overlay()
	var (
		stats   RunStats
		matches = make([]Match, 0, len(buyers))
	)
	for _, b := range buyers {
		if err := ctx.Err(); err != nil {
			return Deck{}, err
		}
		stats.Pairs++

		penalties := ranking.NoPenalties()
		if snap != nil {
			f := snap.Factors(b)
			if f.Suppressed {
				stats.Suppressed++
				continue
			}
			penalties = ranking.Penalties{Swipe: f.Penalty, Pattern: f.Pattern}
		}

		score := o.scorer.Score(exporter, b, overlay, penalties)
		if score.Composite < o.cfg.MinComposite {
			stats.BelowThreshold++
			continue
		}

		matches = append(matches, Match{
			MatchScore: score,
			NewsTags:   o.catalog.NewsTags(b),
			Buyer:      DisplayFor(b),
		})
	}
	stats.Matches = len(matches)

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Composite > matches[j].Composite
	})
	if len(matches) > o.cfg.TopN {
		matches = matches[:o.cfg.TopN]
	}

	deck = Deck{
		ExporterID:   exporter.ID,
		Industry:     exporter.Industry,
		State:        exporter.State,
		TotalMatches: len(matches),
		GeneratedAt:  o.now().UTC(),
		TopMatches:   matches,
		Stats:        stats,
	}

	o.logger.DebugContext(ctx, "ranked exporter",
		slog.String("exporter_id", exporter.ID),
		slog.Int("pairs", stats.Pairs),
		slog.Int("suppressed", stats.Suppressed),
		slog.Int("below_threshold", stats.BelowThreshold),
		slog.Int("kept", deck.TotalMatches))
	return deck, nil
}

func (o *Orchestrator) observe(start time.Time, deck Deck, err error) {
	if o.metrics == nil {
		return
	}
	if err != nil {
		o.metrics.IncRankings("failure")
		return
	}
	o.metrics.IncRankings("success")
	o.metrics.ObserveRankingDuration(time.Since(start).Seconds())
	o.metrics.AddPairs(deck.Stats)
	o.metrics.ObserveDeckSize(deck.TotalMatches)
}

// RankExporter ranks every catalog buyer for the exporter with the given ID.
func (o *Orchestrator) RankExporter(ctx context.Context, exporterID string) (Deck, error) {
	exp, ok := o.catalog.Exporter(exporterID)
	if !ok {
		return Deck{}, fmt.Errorf("%w: %s", ErrUnknownExporter, exporterID)
	}
	return o.Rank(ctx, exp, o.catalog.Buyers())
}

// Run ranks buyers for every exporter in parallel. Each exporter is handled by exactly
// one worker, and the returned decks follow the exporter input order. The first error
// cancels the remaining work.
func (o *Orchestrator) Run(ctx context.Context, exporters []trade.Exporter, buyers []trade.Buyer) (decks []Deck, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "matching.run")
	defer func() { endSpan(err) }()

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	decks = make([]Deck, len(exporters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, exp := range exporters {
		g.Go(func() error {
			d, err := o.Rank(gctx, exp, buyers)
			if err != nil {
				return err
			}
			decks[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total RunStats
	for _, d := range decks {
		total.Add(d.Stats)
	}
	o.logger.InfoContext(ctx, "ranking run complete",
		slog.Int("exporters", len(exporters)),
		slog.Int("buyers", len(buyers)),
		slog.Int("pairs", total.Pairs),
		slog.Int("matches", total.Matches),
		slog.Int("suppressed", total.Suppressed))
	return decks, nil
}
