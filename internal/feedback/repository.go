package feedback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Repository errors.
var (
	ErrMissingExporterID = errors.New("exporter id is required")
	ErrMissingBuyerID    = errors.New("buyer id is required")
)

// PairKey identifies an (exporter, buyer) pair.
type PairKey struct {
	ExporterID string
	BuyerID    string
}

// String returns "exporter:buyer".
func (k PairKey) String() string {
	return k.ExporterID + ":" + k.BuyerID
}

// Validate reports a missing identity component.
func (k PairKey) Validate() error {
	if k.ExporterID == "" {
		return ErrMissingExporterID
	}
	if k.BuyerID == "" {
		return ErrMissingBuyerID
	}
	return nil
}

// SwipeEvent is one entry in the append-only swipe log.
type SwipeEvent struct {
	ID         string    `json:"id" cbor:"id"`
	ExporterID string    `json:"exporter_id" cbor:"exporter_id"`
	BuyerID    string    `json:"buyer_id" cbor:"buyer_id"`
	Direction  Direction `json:"direction" cbor:"direction"`
	CreatedAt  time.Time `json:"created_at" cbor:"created_at"`
}

// Repository persists swipe feedback. Reads of absent records return the defaults
// (NewSwipeState, NewPreferenceVector) so callers can create state lazily.
type Repository interface {
	GetState(ctx context.Context, key PairKey) (SwipeState, error)
	PutState(ctx context.Context, key PairKey, state SwipeState) error
	// ListStates returns every stored pair state for an exporter keyed by buyer id.
	ListStates(ctx context.Context, exporterID string) (map[string]SwipeState, error)
	GetPreferenceVector(ctx context.Context, exporterID string) (PreferenceVector, error)
	PutPreferenceVector(ctx context.Context, exporterID string, pv PreferenceVector) error
	AppendSwipeEvent(ctx context.Context, ev SwipeEvent) error
	// ApplySwipe stores the pair state, the exporter's preference vector and the swipe
	// event as one unit: either all three are written or none is.
	ApplySwipe(ctx context.Context, key PairKey, state SwipeState, pv PreferenceVector, ev SwipeEvent) error
	// ListSwipeEvents returns an exporter's swipe log, oldest first.
	ListSwipeEvents(ctx context.Context, exporterID string) ([]SwipeEvent, error)
}

// InMemoryRepository is a thread-safe in-memory Repository. Values are copied on the
// way in and out so callers never share maps with the store.
type InMemoryRepository struct {
	mu      sync.RWMutex
	states  map[PairKey]SwipeState
	vectors map[string]PreferenceVector
	events  []SwipeEvent
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		states:  make(map[PairKey]SwipeState),
		vectors: make(map[string]PreferenceVector),
	}
}

// GetState returns the pair state or a fresh default.
func (r *InMemoryRepository) GetState(_ context.Context, key PairKey) (SwipeState, error) {
	if err := key.Validate(); err != nil {
		return SwipeState{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.states[key]; ok {
		return copyState(s), nil
	}
	return NewSwipeState(), nil
}

// PutState stores the pair state.
func (r *InMemoryRepository) PutState(_ context.Context, key PairKey, state SwipeState) error {
	if err := key.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[key] = copyState(state)
	return nil
}

// ListStates returns all stored states for an exporter.
func (r *InMemoryRepository) ListStates(_ context.Context, exporterID string) (map[string]SwipeState, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]SwipeState)
	for k, s := range r.states {
		if k.ExporterID == exporterID {
			out[k.BuyerID] = copyState(s)
		}
	}
	return out, nil
}

// GetPreferenceVector returns the exporter's vector or an empty one.
func (r *InMemoryRepository) GetPreferenceVector(_ context.Context, exporterID string) (PreferenceVector, error) {
	if exporterID == "" {
		return PreferenceVector{}, ErrMissingExporterID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pv, ok := r.vectors[exporterID]; ok {
		return pv.Clone(), nil
	}
	return NewPreferenceVector(), nil
}

// PutPreferenceVector stores the exporter's vector.
func (r *InMemoryRepository) PutPreferenceVector(_ context.Context, exporterID string, pv PreferenceVector) error {
	if exporterID == "" {
		return ErrMissingExporterID
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vectors[exporterID] = pv.Clone()
	return nil
}

// AppendSwipeEvent appends to the swipe log.
func (r *InMemoryRepository) AppendSwipeEvent(_ context.Context, ev SwipeEvent) error {
	if err := (PairKey{ExporterID: ev.ExporterID, BuyerID: ev.BuyerID}).Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	return nil
}

// ApplySwipe writes state, vector and event under one lock hold.
func (r *InMemoryRepository) ApplySwipe(_ context.Context, key PairKey, state SwipeState, pv PreferenceVector, ev SwipeEvent) error {
	if err := validateSwipe(key, ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[key] = copyState(state)
	r.vectors[key.ExporterID] = pv.Clone()
	r.events = append(r.events, ev)
	return nil
}

// ListSwipeEvents returns the exporter's swipe log, oldest first.
func (r *InMemoryRepository) ListSwipeEvents(_ context.Context, exporterID string) ([]SwipeEvent, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SwipeEvent
	for _, ev := range r.events {
		if ev.ExporterID == exporterID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ErrSwipeMismatch is returned by ApplySwipe when the event names another pair.
var ErrSwipeMismatch = errors.New("swipe event does not match pair key")

func validateSwipe(key PairKey, ev SwipeEvent) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if ev.ExporterID != key.ExporterID || ev.BuyerID != key.BuyerID {
		return fmt.Errorf("%w: event %s:%s, key %s", ErrSwipeMismatch, ev.ExporterID, ev.BuyerID, key)
	}
	return nil
}

// copyState detaches the timestamp pointer from the caller's value.
func copyState(s SwipeState) SwipeState {
	if s.LastSwipedAt != nil {
		s.LastSwipedAt = stamp(*s.LastSwipedAt)
	}
	return s
}
