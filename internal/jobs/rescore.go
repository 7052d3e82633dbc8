package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/tradematch/internal/matching"
)

// Ranker builds a fresh deck for an exporter.
type Ranker interface {
	RankExporter(ctx context.Context, exporterID string) (matching.Deck, error)
}

// DeckPublisher receives every refreshed deck, e.g. to push it to live subscribers.
type DeckPublisher interface {
	PublishDeck(deck matching.Deck)
}

// RescoreJobConfig configures the deck rescore job.
type RescoreJobConfig struct {
	// Interval is the duration between rescore cycles.
	Interval time.Duration
	// Timeout for each rescore cycle.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking. Optional.
	Metrics *Metrics
}

// DefaultRescoreInterval is the default interval between rescore cycles.
const DefaultRescoreInterval = 30 * time.Second

// DefaultRescoreTimeout is the default timeout for a single rescore cycle.
const DefaultRescoreTimeout = 30 * time.Second

// RescoreJob periodically re-ranks decks for exporters marked dirty by swipes and
// stores the results.
type RescoreJob struct {
	config    RescoreJobConfig
	tracker   *DirtyTracker
	ranker    Ranker
	store     matching.DeckStore
	publisher DeckPublisher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRescoreJob creates a rescore job. publisher may be nil.
func NewRescoreJob(
	config RescoreJobConfig,
	tracker *DirtyTracker,
	ranker Ranker,
	store matching.DeckStore,
	publisher DeckPublisher,
) *RescoreJob {
	if config.Interval == 0 {
		config.Interval = DefaultRescoreInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRescoreTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RescoreJob{
		config:    config,
		tracker:   tracker,
		ranker:    ranker,
		store:     store,
		publisher: publisher,
	}
}

// Start begins the periodic rescore loop.
// Returns immediately; the job runs in a background goroutine.
func (j *RescoreJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for the current cycle to finish.
func (j *RescoreJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job loop is active.
func (j *RescoreJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RescoreJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("deck rescore job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("deck rescore job stopping due to stop signal")
			return
		case <-ticker.C:
			j.RescoreNow(ctx)
		}
	}
}

// RescoreNow re-ranks every dirty exporter immediately and returns how many decks
// were refreshed.
func (j *RescoreJob) RescoreNow(parentCtx context.Context) int {
	dirty := j.tracker.Dirty()
	if j.config.Metrics != nil {
		j.config.Metrics.SetDirtyExporters(len(dirty))
	}
	if len(dirty) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	start := time.Now()
	refreshed := 0
	status := StatusSuccess

	j.config.Logger.Info("rescoring decks", slog.Int("dirty_count", len(dirty)))

	for i, exporterID := range dirty {
		if ctx.Err() != nil {
			j.config.Logger.Error("deck rescore timeout exceeded",
				slog.Int("processed", i),
				slog.Int("total", len(dirty)),
				slog.Duration("timeout", j.config.Timeout))
			j.incError("timeout")
			status = StatusFailure
			break
		}

		started := time.Now()
		deck, err := j.ranker.RankExporter(ctx, exporterID)
		if err != nil {
			j.config.Logger.Error("failed to rescore deck",
				slog.String("exporter_id", exporterID),
				slog.String("error", err.Error()))
			j.incError("rank_error")
			status = StatusFailure
			continue
		}
		if err := j.store.Put(ctx, deck); err != nil {
			j.config.Logger.Error("failed to store deck",
				slog.String("exporter_id", exporterID),
				slog.String("error", err.Error()))
			j.incError("store_error")
			status = StatusFailure
			continue
		}

		j.tracker.ClearDirty(exporterID, started)
		if j.publisher != nil {
			j.publisher.PublishDeck(deck)
		}
		refreshed++
	}

	duration := time.Since(start).Seconds()
	if m := j.config.Metrics; m != nil {
		m.IncJobsTotal(JobTypeDeckRescore, status)
		m.ObserveJobDuration(JobTypeDeckRescore, duration)
		m.SetDirtyExporters(j.tracker.Count())
	}

	j.config.Logger.Info("deck rescore completed",
		slog.Float64("duration_seconds", duration),
		slog.Int("decks_refreshed", refreshed),
		slog.Int("decks_failed", len(dirty)-refreshed))
	return refreshed
}

func (j *RescoreJob) incError(errorType string) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncJobErrors(JobTypeDeckRescore, errorType)
	}
}
