package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository with in-memory storage. Expired records are
// hidden from Get and removed by DeleteExpired.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	expiry  time.Duration
	now     func() time.Time
}

// NewInMemoryRepository creates a repository whose records expire after expiry.
// A non-positive expiry uses DefaultExpiry.
func NewInMemoryRepository(expiry time.Duration) *InMemoryRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &InMemoryRepository{
		records: make(map[string]*Record),
		expiry:  expiry,
		now:     time.Now,
	}
}

// Get implements Repository.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok || r.expired(record) {
		return nil, ErrKeyNotFound
	}

	// Return a copy to prevent external mutation
	copied := *record
	return &copied, nil
}

// Store implements Repository. An expired record under the same key is replaced.
func (r *InMemoryRepository) Store(_ context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.records[record.Key]; exists && !r.expired(existing) {
		return ErrKeyExists
	}

	copied := *record
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = r.now()
	}
	r.records[record.Key] = &copied
	return nil
}

// DeleteExpired removes expired records and returns how many were deleted.
func (r *InMemoryRepository) DeleteExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, record := range r.records {
		if r.expired(record) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted
}

func (r *InMemoryRepository) expired(record *Record) bool {
	return !r.now().Before(record.CreatedAt.Add(r.expiry))
}
