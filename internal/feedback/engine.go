package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/tradematch/internal/trade"
)

// ErrNilRepository is returned by NewEngine without a repository.
var ErrNilRepository = errors.New("feedback repository is required")

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Config holds the decay and pattern parameters. Nil means DefaultConfig.
	Config *Config
	// Logger for swipe activity.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// OnSwipe, if set, is called after a swipe has been persisted.
	OnSwipe func(SwipeResult)
}

// SwipeResult is the outcome of one processed swipe.
type SwipeResult struct {
	State  SwipeState       `json:"state"`
	Vector PreferenceVector `json:"-"`
	Event  SwipeEvent       `json:"event"`
	// NewlySuppressed is true when this swipe hid the buyer.
	NewlySuppressed bool `json:"newly_suppressed"`
}

// Engine applies swipes and serves consistent feedback snapshots. All reads and writes
// for one exporter are serialized by a per-exporter mutex.
type Engine struct {
	repo    Repository
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	onSwipe func(SwipeResult)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine backed by repo.
func NewEngine(repo Repository, cfg EngineConfig) (*Engine, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}

	c := DefaultConfig()
	if cfg.Config != nil {
		c = *cfg.Config
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feedback config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		repo:    repo,
		cfg:     c,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
		onSwipe: cfg.OnSwipe,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Config returns the engine's feedback configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) lock(exporterID string) func() {
	e.mu.Lock()
	l, ok := e.locks[exporterID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[exporterID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ProcessSwipe records a swipe by exporterID on buyer. The pair state, the exporter's
// preference vector and the swipe log entry are stored together, so a failed swipe
// leaves no trace and can be retried.
func (e *Engine) ProcessSwipe(ctx context.Context, exporterID string, buyer trade.Buyer, dir Direction) (SwipeResult, error) {
	start := e.now()
	key := PairKey{ExporterID: exporterID, BuyerID: buyer.ID}
	if err := key.Validate(); err != nil {
		e.incError("validation")
		return SwipeResult{}, err
	}
	if dir != Left && dir != Right {
		e.incError("validation")
		return SwipeResult{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}

	unlock := e.lock(exporterID)
	defer unlock()

	state, err := e.repo.GetState(ctx, key)
	if err != nil {
		e.incError("load")
		return SwipeResult{}, fmt.Errorf("failed to load swipe state: %w", err)
	}
	pv, err := e.repo.GetPreferenceVector(ctx, exporterID)
	if err != nil {
		e.incError("load")
		return SwipeResult{}, fmt.Errorf("failed to load preference vector: %w", err)
	}

	now := e.now()
	wasSuppressed := state.Suppressed
	next, err := Apply(state, dir, now, e.cfg)
	if err != nil {
		e.incError("validation")
		return SwipeResult{}, err
	}
	pv = UpdatePreferenceVector(pv, buyer, dir, now, e.cfg)

	ev := SwipeEvent{
		ID:         uuid.NewString(),
		ExporterID: exporterID,
		BuyerID:    buyer.ID,
		Direction:  dir,
		CreatedAt:  now.UTC(),
	}

	if err := e.repo.ApplySwipe(ctx, key, next, pv, ev); err != nil {
		e.incError("store")
		return SwipeResult{}, fmt.Errorf("failed to store swipe: %w", err)
	}

	result := SwipeResult{
		State:           next,
		Vector:          pv,
		Event:           ev,
		NewlySuppressed: next.Suppressed && !wasSuppressed,
	}

	if e.metrics != nil {
		e.metrics.IncSwipes(dir)
		if result.NewlySuppressed {
			e.metrics.IncSuppressions()
		}
		e.metrics.ObserveSwipeDuration(e.now().Sub(start).Seconds())
	}

	e.logger.DebugContext(ctx, "swipe processed",
		slog.String("exporter_id", exporterID),
		slog.String("buyer_id", buyer.ID),
		slog.String("direction", string(dir)),
		slog.Float64("penalty_factor", next.PenaltyFactor),
		slog.Bool("suppressed", next.Suppressed))

	if e.onSwipe != nil {
		e.onSwipe(result)
	}
	return result, nil
}

func (e *Engine) incError(errorType string) {
	if e.metrics != nil {
		e.metrics.IncSwipeErrors(errorType)
	}
}

// Snapshot is a point-in-time copy of an exporter's feedback. It is safe to read from
// multiple goroutines.
type Snapshot struct {
	ExporterID string
	Vector     PreferenceVector
	States     map[string]SwipeState
	TakenAt    time.Time
	cfg        Config
}

// Snapshot copies the exporter's preference vector and all pair states under the
// exporter lock, so a ranking pass never observes a half-applied swipe.
func (e *Engine) Snapshot(ctx context.Context, exporterID string) (*Snapshot, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}

	unlock := e.lock(exporterID)
	defer unlock()

	pv, err := e.repo.GetPreferenceVector(ctx, exporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preference vector: %w", err)
	}
	states, err := e.repo.ListStates(ctx, exporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swipe states: %w", err)
	}

	return &Snapshot{
		ExporterID: exporterID,
		Vector:     pv,
		States:     states,
		TakenAt:    e.now(),
		cfg:        e.cfg,
	}, nil
}

// State returns the stored state for a buyer, or the default when never swiped.
func (s *Snapshot) State(buyerID string) SwipeState {
	if st, ok := s.States[buyerID]; ok {
		return st
	}
	return NewSwipeState()
}

// Factors computes read-time feedback factors for buyer at the snapshot time.
func (s *Snapshot) Factors(buyer trade.Buyer) Factors {
	return ComputeFactors(s.State(buyer.ID), s.Vector, buyer, s.TakenAt, s.cfg)
}

// PairFactors loads a single pair's state and returns it with its read-time factors.
func (e *Engine) PairFactors(ctx context.Context, exporterID string, buyer trade.Buyer) (SwipeState, Factors, error) {
	key := PairKey{ExporterID: exporterID, BuyerID: buyer.ID}
	if err := key.Validate(); err != nil {
		return SwipeState{}, Factors{}, err
	}

	unlock := e.lock(exporterID)
	defer unlock()

	state, err := e.repo.GetState(ctx, key)
	if err != nil {
		return SwipeState{}, Factors{}, fmt.Errorf("failed to load swipe state: %w", err)
	}
	pv, err := e.repo.GetPreferenceVector(ctx, exporterID)
	if err != nil {
		return SwipeState{}, Factors{}, fmt.Errorf("failed to load preference vector: %w", err)
	}
	return state, ComputeFactors(state, pv, buyer, e.now(), e.cfg), nil
}

// Events returns the exporter's swipe log, oldest first.
func (e *Engine) Events(ctx context.Context, exporterID string) ([]SwipeEvent, error) {
	return e.repo.ListSwipeEvents(ctx, exporterID)
}
