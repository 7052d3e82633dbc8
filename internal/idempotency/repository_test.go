package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newRecord(key string) *Record {
	return &Record{
		Key:                key,
		Method:             "POST",
		Route:              "/api/v1/swipes",
		ResponseHash:       ComputeResponseHash(`{"ok":true}`),
		ResponseBody:       `{"ok":true}`,
		ResponseStatusCode: 200,
	}
}

func TestInMemoryRepository_GetStore(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(time.Hour)

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}

	rec := newRecord("k1")
	if err := repo.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !rec.CreatedAt.IsZero() {
		t.Error("Store() must not mutate the caller's record")
	}

	got, err := repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ResponseBody != rec.ResponseBody || got.ResponseStatusCode != 200 || got.Route != rec.Route {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got.ResponseBody = "mutated"
	again, _ := repo.Get(ctx, "k1")
	if again.ResponseBody != rec.ResponseBody {
		t.Error("Get() must return a copy")
	}

	if err := repo.Store(ctx, newRecord("k1")); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate Store() error = %v, want ErrKeyExists", err)
	}
	if err := repo.Store(ctx, newRecord("")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key Store() error = %v, want ErrInvalidKey", err)
	}
}

func TestInMemoryRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	if err := repo.Store(ctx, newRecord("old")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Minute)
	if err := repo.Store(ctx, newRecord("new")); err != nil {
		t.Fatal(err)
	}

	now = now.Add(45 * time.Minute)
	if _, err := repo.Get(ctx, "old"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expired Get() error = %v, want ErrKeyNotFound", err)
	}
	if _, err := repo.Get(ctx, "new"); err != nil {
		t.Errorf("live Get() error = %v", err)
	}

	// An expired key can be reused.
	if err := repo.Store(ctx, newRecord("old")); err != nil {
		t.Errorf("Store() over expired key error = %v", err)
	}

	now = now.Add(2 * time.Hour)
	if n := repo.DeleteExpired(); n != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", n)
	}
	if n := repo.DeleteExpired(); n != 0 {
		t.Errorf("second DeleteExpired() = %d, want 0", n)
	}
}

func TestNewInMemoryRepository_DefaultExpiry(t *testing.T) {
	if repo := NewInMemoryRepository(0); repo.expiry != DefaultExpiry {
		t.Errorf("expiry = %v, want %v", repo.expiry, DefaultExpiry)
	}
}
