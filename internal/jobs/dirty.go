package jobs

import (
	"sort"
	"sync"
	"time"
)

// DirtyTracker records exporters whose decks are stale because of new swipes.
// Thread-safe via RWMutex.
type DirtyTracker struct {
	mu    sync.RWMutex
	flags map[string]time.Time // exporterID -> time last marked dirty
}

// NewDirtyTracker creates an empty tracker.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{flags: make(map[string]time.Time)}
}

// MarkDirty flags an exporter for rescoring.
func (t *DirtyTracker) MarkDirty(exporterID string) {
	t.mu.Lock()
	t.flags[exporterID] = time.Now()
	t.mu.Unlock()
}

// ClearDirty removes the flag unless the exporter was marked again after since.
// A swipe that arrives while a rescore is running keeps the exporter dirty for the
// next cycle.
func (t *DirtyTracker) ClearDirty(exporterID string, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if marked, ok := t.flags[exporterID]; ok && !marked.After(since) {
		delete(t.flags, exporterID)
	}
}

// Dirty returns the flagged exporter IDs, oldest mark first.
func (t *DirtyTracker) Dirty() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.flags))
	for id := range t.flags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := t.flags[ids[i]], t.flags[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.Before(tj)
	})
	return ids
}

// IsDirty reports whether an exporter is flagged.
func (t *DirtyTracker) IsDirty(exporterID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.flags[exporterID]
	return ok
}

// Count returns the number of flagged exporters.
func (t *DirtyTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flags)
}
