package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces all feedback keys.
const DefaultRedisPrefix = "tradematch"

// RedisRepository implements Repository on Redis.
//
// Layout per exporter:
//
//	{prefix}:states:{exporter}  hash buyer id -> CBOR SwipeState
//	{prefix}:prefs:{exporter}   string CBOR PreferenceVector
//	{prefix}:events:{exporter}  list of CBOR SwipeEvent, append order
type RedisRepository struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisRepository creates a Redis-backed repository. An empty prefix uses DefaultRedisPrefix.
func NewRedisRepository(client *redis.Client, prefix string, logger *slog.Logger) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisRepository) statesKey(exporterID string) string {
	return r.prefix + ":states:" + exporterID
}

func (r *RedisRepository) prefsKey(exporterID string) string {
	return r.prefix + ":prefs:" + exporterID
}

func (r *RedisRepository) eventsKey(exporterID string) string {
	return r.prefix + ":events:" + exporterID
}

// GetState returns the pair state or a fresh default.
func (r *RedisRepository) GetState(ctx context.Context, key PairKey) (SwipeState, error) {
	if err := key.Validate(); err != nil {
		return SwipeState{}, err
	}

	data, err := r.client.HGet(ctx, r.statesKey(key.ExporterID), key.BuyerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSwipeState(), nil
	}
	if err != nil {
		return SwipeState{}, fmt.Errorf("failed to get swipe state %s: %w", key, err)
	}

	var s SwipeState
	if err := DecodeRecord(data, &s); err != nil {
		return SwipeState{}, fmt.Errorf("swipe state %s: %w", key, err)
	}
	return s, nil
}

// PutState stores the pair state.
func (r *RedisRepository) PutState(ctx context.Context, key PairKey, state SwipeState) error {
	if err := key.Validate(); err != nil {
		return err
	}

	data, err := EncodeRecord(state)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.statesKey(key.ExporterID), key.BuyerID, data).Err(); err != nil {
		r.logger.Error("failed to store swipe state",
			slog.String("error", err.Error()),
			slog.String("exporter_id", key.ExporterID),
			slog.String("buyer_id", key.BuyerID))
		return fmt.Errorf("failed to put swipe state %s: %w", key, err)
	}
	return nil
}

// ListStates returns every stored state for an exporter keyed by buyer id.
func (r *RedisRepository) ListStates(ctx context.Context, exporterID string) (map[string]SwipeState, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}

	raw, err := r.client.HGetAll(ctx, r.statesKey(exporterID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list swipe states: %w", err)
	}

	out := make(map[string]SwipeState, len(raw))
	for buyerID, data := range raw {
		var s SwipeState
		if err := DecodeRecord([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("swipe state %s/%s: %w", exporterID, buyerID, err)
		}
		out[buyerID] = s
	}
	return out, nil
}

// GetPreferenceVector loads the exporter's vector or returns an empty one.
func (r *RedisRepository) GetPreferenceVector(ctx context.Context, exporterID string) (PreferenceVector, error) {
	if exporterID == "" {
		return PreferenceVector{}, ErrMissingExporterID
	}

	data, err := r.client.Get(ctx, r.prefsKey(exporterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewPreferenceVector(), nil
	}
	if err != nil {
		return PreferenceVector{}, fmt.Errorf("failed to get preference vector %s: %w", exporterID, err)
	}

	pv := NewPreferenceVector()
	if err := DecodeRecord(data, &pv); err != nil {
		return PreferenceVector{}, fmt.Errorf("preference vector %s: %w", exporterID, err)
	}
	if pv.LeftPatterns == nil {
		pv.LeftPatterns = map[string]int{}
	}
	if pv.RightPatterns == nil {
		pv.RightPatterns = map[string]int{}
	}
	return pv, nil
}

// PutPreferenceVector stores the exporter's vector.
func (r *RedisRepository) PutPreferenceVector(ctx context.Context, exporterID string, pv PreferenceVector) error {
	if exporterID == "" {
		return ErrMissingExporterID
	}

	data, err := EncodeRecord(pv)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefsKey(exporterID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to put preference vector %s: %w", exporterID, err)
	}
	return nil
}

// AppendSwipeEvent pushes the event onto the exporter's log.
func (r *RedisRepository) AppendSwipeEvent(ctx context.Context, ev SwipeEvent) error {
	if err := (PairKey{ExporterID: ev.ExporterID, BuyerID: ev.BuyerID}).Validate(); err != nil {
		return err
	}

	data, err := EncodeRecord(ev)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.eventsKey(ev.ExporterID), data).Err(); err != nil {
		return fmt.Errorf("failed to append swipe event: %w", err)
	}
	return nil
}

// ApplySwipe writes the pair state, preference vector and swipe event in one MULTI/EXEC
// transaction.
func (r *RedisRepository) ApplySwipe(ctx context.Context, key PairKey, state SwipeState, pv PreferenceVector, ev SwipeEvent) error {
	if err := validateSwipe(key, ev); err != nil {
		return err
	}

	stateData, err := EncodeRecord(state)
	if err != nil {
		return err
	}
	pvData, err := EncodeRecord(pv)
	if err != nil {
		return err
	}
	evData, err := EncodeRecord(ev)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.statesKey(key.ExporterID), key.BuyerID, stateData)
		pipe.Set(ctx, r.prefsKey(key.ExporterID), pvData, 0)
		pipe.RPush(ctx, r.eventsKey(key.ExporterID), evData)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to apply swipe",
			slog.String("error", err.Error()),
			slog.String("exporter_id", key.ExporterID),
			slog.String("buyer_id", key.BuyerID))
		return fmt.Errorf("failed to apply swipe %s: %w", key, err)
	}
	return nil
}

// ListSwipeEvents returns the exporter's log, oldest first.
func (r *RedisRepository) ListSwipeEvents(ctx context.Context, exporterID string) ([]SwipeEvent, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}

	raw, err := r.client.LRange(ctx, r.eventsKey(exporterID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list swipe events: %w", err)
	}

	out := make([]SwipeEvent, 0, len(raw))
	for _, data := range raw {
		var ev SwipeEvent
		if err := DecodeRecord([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("swipe event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
