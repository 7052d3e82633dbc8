package idempotency

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisRepository runs against REDIS_URL (or localhost:6379) and skips when Redis
// is unreachable.
func TestRedisRepository(t *testing.T) {
	opts := &redis.Options{Addr: "localhost:6379"}
	if url := os.Getenv("REDIS_URL"); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("invalid REDIS_URL: %v", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}

	prefix := "tradematch-idem-test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	repo := NewRedisRepository(client, prefix, time.Minute)
	t.Cleanup(func() { client.Del(context.Background(), prefix+":k1") })

	if _, err := repo.Get(ctx, "k1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get() error = %v, want ErrKeyNotFound", err)
	}
	if err := repo.Store(ctx, newRecord("k1")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := repo.Store(ctx, newRecord("k1")); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate Store() error = %v, want ErrKeyExists", err)
	}

	got, err := repo.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ResponseBody != `{"ok":true}` || got.ResponseStatusCode != 200 {
		t.Errorf("Get() = %+v", got)
	}

	ttl, err := client.TTL(ctx, prefix+":k1").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}
