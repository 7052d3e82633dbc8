package matching

import (
	"context"
	"sync"
)

// DeckStore caches the latest deck per exporter.
type DeckStore interface {
	// Get returns the cached deck and whether one exists.
	Get(ctx context.Context, exporterID string) (Deck, bool, error)
	Put(ctx context.Context, deck Deck) error
	Delete(ctx context.Context, exporterID string) error
}

// InMemoryDeckStore is a thread-safe DeckStore.
type InMemoryDeckStore struct {
	mu    sync.RWMutex
	decks map[string]Deck
}

// NewInMemoryDeckStore creates an empty store.
func NewInMemoryDeckStore() *InMemoryDeckStore {
	return &InMemoryDeckStore{decks: make(map[string]Deck)}
}

// Get returns the cached deck for exporterID.
func (s *InMemoryDeckStore) Get(_ context.Context, exporterID string) (Deck, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[exporterID]
	return d, ok, nil
}

// Put replaces the cached deck for the deck's exporter.
func (s *InMemoryDeckStore) Put(_ context.Context, deck Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decks[deck.ExporterID] = deck
	return nil
}

// Delete evicts the cached deck for exporterID.
func (s *InMemoryDeckStore) Delete(_ context.Context, exporterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.decks, exporterID)
	return nil
}
