package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/tradematch/internal/api"
	"github.com/onnwee/tradematch/internal/config"
	"github.com/onnwee/tradematch/internal/feedback"
	"github.com/onnwee/tradematch/internal/health"
	"github.com/onnwee/tradematch/internal/idempotency"
	"github.com/onnwee/tradematch/internal/ingest"
	"github.com/onnwee/tradematch/internal/jobs"
	"github.com/onnwee/tradematch/internal/matching"
	"github.com/onnwee/tradematch/internal/middleware"
	"github.com/onnwee/tradematch/internal/ranking"
	"github.com/onnwee/tradematch/internal/stream"
)

const serviceName = "tradematch-api"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// cleanupInterval is how often expired in-memory rate limit buckets and idempotency
// keys are purged.
const cleanupInterval = 5 * time.Minute

// app holds the wired components of the API server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry     *prometheus.Registry
	httpMetrics  *middleware.Metrics
	store        *feedback.Store
	catalog      *matching.Catalog
	engine       *feedback.Engine
	orchestrator *matching.Orchestrator
	decks        matching.DeckStore
	tracker      *jobs.DirtyTracker
	broadcaster  *stream.DeckBroadcaster
	rescore      *jobs.RescoreJob
	rateStore    middleware.RateLimitStore
	idemRepo     idempotency.Repository
}

// newApp loads the catalog, opens the feedback store and wires every component.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		decks:    matching.NewInMemoryDeckStore(),
		tracker:  jobs.NewDirtyTracker(),
	}

	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := a.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	feedbackMetrics := feedback.NewMetrics()
	matchingMetrics := matching.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	streamMetrics := stream.NewMetrics()
	a.httpMetrics = middleware.NewMetrics()
	for name, register := range map[string]func(prometheus.Registerer) error{
		"feedback":   feedbackMetrics.Register,
		"matching":   matchingMetrics.Register,
		"jobs":       jobMetrics.Register,
		"stream":     streamMetrics.Register,
		"middleware": a.httpMetrics.Register,
	} {
		if err := register(a.registry); err != nil {
			return nil, fmt.Errorf("failed to register %s metrics: %w", name, err)
		}
	}

	loader := ingest.NewLoader(ingest.Config{Logger: logger})
	catalog, err := matching.LoadCatalog(loader, matching.CatalogFiles{
		Buyers:    cfg.BuyersCSV,
		Exporters: cfg.ExportersCSV,
		News:      cfg.NewsCSV,
	}, cfg.News)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	a.catalog = catalog

	weights, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		return nil, err
	}
	scorer, err := ranking.NewScorer(weights)
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	store, err := feedback.OpenStore(ctx, feedback.StoreConfig{
		Backend:     cfg.FeedbackStore,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback store: %w", err)
	}
	a.store = store

	feedbackCfg := cfg.Feedback
	a.engine, err = feedback.NewEngine(store.Repository, feedback.EngineConfig{
		Config:  &feedbackCfg,
		Logger:  logger,
		Metrics: feedbackMetrics,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.orchestrator, err = matching.NewOrchestrator(matching.OrchestratorConfig{
		Scorer:   scorer,
		Catalog:  catalog,
		Feedback: a.engine,
		Config:   cfg.MatchingConfig(),
		Logger:   logger,
		Metrics:  matchingMetrics,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.broadcaster = stream.NewDeckBroadcaster(logger, streamMetrics)
	a.rescore = jobs.NewRescoreJob(jobs.RescoreJobConfig{
		Interval: cfg.RescoreInterval,
		Logger:   logger,
		Metrics:  jobMetrics,
	}, a.tracker, a.orchestrator, a.decks, a.broadcaster)

	if store.Redis != nil {
		a.rateStore = middleware.NewRedisRateLimitStore(store.Redis, "tradematch:ratelimit")
		a.idemRepo = idempotency.NewRedisRepository(store.Redis, "tradematch:idempotency", idempotency.DefaultExpiry)
	} else {
		a.rateStore = middleware.NewInMemoryRateLimitStore()
		a.idemRepo = idempotency.NewInMemoryRepository(idempotency.DefaultExpiry)
	}

	return a, nil
}

// checkers maps each configured external dependency to its readiness check.
func (a *app) checkers() map[string]health.Checker {
	checks := make(map[string]health.Checker)
	if a.store.DB != nil {
		checks["database"] = health.NewDBChecker(a.store.DB)
	}
	if a.store.Redis != nil {
		checks["redis"] = health.NewRedisChecker(a.store.Redis)
	}
	return checks
}

// handler builds the routed and instrumented HTTP handler.
func (a *app) handler() http.Handler {
	cors := middleware.CORSConfig{AllowedOrigins: a.cfg.CORSAllowedOrigins}

	exporters := api.NewExporterHandlers(api.ExporterHandlersConfig{
		Catalog:    a.catalog,
		Engine:     a.engine,
		Ranker:     a.orchestrator,
		Decks:      a.decks,
		Dirty:      a.tracker,
		Subscriber: a.broadcaster,
		MaxDeckAge: a.cfg.RescoreInterval,
		CORS:       cors,
		Logger:     a.logger,
	})

	// Swipes: rate limit first so replayed retries still count, then idempotency.
	swipeMiddleware := middleware.Idempotency(a.idemRepo)
	if a.cfg.SwipeRateLimit > 0 {
		limit := middleware.RateLimitConfig{RequestsPerWindow: a.cfg.SwipeRateLimit, WindowDuration: time.Minute}
		limiter := middleware.RateLimiter(a.rateStore, limit, middleware.IPKeyFunc(), a.httpMetrics)
		idem := swipeMiddleware
		swipeMiddleware = func(next http.Handler) http.Handler { return limiter(idem(next)) }
	}

	mux := api.Routes(api.RoutesConfig{
		Exporters:       exporters,
		Health:          api.NewHealthHandlers(api.HealthHandlersConfig{Checkers: a.checkers()}),
		SwipeMiddleware: swipeMiddleware,
		Metrics:         promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}),
		Version:         version,
	})

	// Apply middleware: RequestID -> Logging -> CORS -> Tracing -> HTTPMetrics
	var h http.Handler = mux
	h = middleware.HTTPMetrics(a.httpMetrics)(h)
	h = middleware.Tracing(serviceName)(h)
	h = middleware.CORS(cors)(h)
	h = middleware.Logging(a.logger)(h)
	return middleware.RequestID(h)
}

// warmDecks ranks every exporter once so the first deck requests hit the cache.
func (a *app) warmDecks(ctx context.Context) error {
	start := time.Now()
	decks, err := a.orchestrator.Run(ctx, a.catalog.Exporters(), a.catalog.Buyers())
	if err != nil {
		return fmt.Errorf("failed to warm deck cache: %w", err)
	}

	var stats matching.RunStats
	for _, deck := range decks {
		if err := a.decks.Put(ctx, deck); err != nil {
			return fmt.Errorf("failed to cache deck for %s: %w", deck.ExporterID, err)
		}
		stats.Add(deck.Stats)
	}
	a.logger.Info("deck cache warmed",
		"exporters", len(decks),
		"pairs", stats.Pairs,
		"matches", stats.Matches,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// startBackground launches the rescore job and in-memory store housekeeping. They stop when
// ctx is cancelled or stopBackground is called.
func (a *app) startBackground(ctx context.Context) error {
	go func() {
		if err := a.warmDecks(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("deck warmup failed", "error", err)
		}
	}()

	// Redis-backed stores expire keys on their own.
	memRate, rateOK := a.rateStore.(*middleware.InMemoryRateLimitStore)
	memIdem, idemOK := a.idemRepo.(*idempotency.InMemoryRepository)
	if rateOK || idemOK {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if rateOK {
						memRate.Cleanup()
					}
					if idemOK {
						if n := memIdem.DeleteExpired(); n > 0 {
							a.logger.Debug("expired idempotency keys removed", "deleted", n)
						}
					}
				}
			}
		}()
	}

	return a.rescore.Start(ctx)
}

func (a *app) stopBackground() {
	a.rescore.Stop()
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close feedback store", "error", err)
	}
}
