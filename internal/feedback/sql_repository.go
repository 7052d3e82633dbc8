package feedback

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/onnwee/tradematch/internal/tracing"
)

// Dialect selects placeholder style and transaction options for a SQL backend.
type Dialect struct {
	Name        string
	system      string // db.system span attribute
	placeholder sq.PlaceholderFormat
	txOptions   *sql.TxOptions
}

var (
	// Postgres uses $n placeholders and read-committed transactions.
	Postgres = Dialect{
		Name:        "postgres",
		system:      "postgresql",
		placeholder: sq.Dollar,
		txOptions:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
	// SQLite uses ? placeholders and the driver's default transaction mode.
	SQLite = Dialect{
		Name:        "sqlite",
		system:      "sqlite",
		placeholder: sq.Question,
	}
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// EnsureSQLiteSchema creates the feedback tables in a SQLite database if missing.
// Postgres deployments use the versioned files under migrations/ instead.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// SQLRepository implements Repository on database/sql for Postgres and SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

// NewSQLRepository creates a repository for the given dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect, logger *slog.Logger) *SQLRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.placeholder),
		logger:  logger,
	}
}

// NewPostgresRepository is shorthand for NewSQLRepository(db, Postgres, logger).
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *SQLRepository {
	return NewSQLRepository(db, Postgres, logger)
}

// NewSQLiteRepository is shorthand for NewSQLRepository(db, SQLite, logger).
func NewSQLiteRepository(db *sql.DB, logger *slog.Logger) *SQLRepository {
	return NewSQLRepository(db, SQLite, logger)
}

var stateColumns = []string{"buyer_id", "left_count", "right_count", "penalty_factor", "suppressed", "last_swiped_at"}

// GetState returns the pair state or a fresh default.
func (r *SQLRepository) GetState(ctx context.Context, key PairKey) (SwipeState, error) {
	if err := key.Validate(); err != nil {
		return SwipeState{}, err
	}

	query, args, err := r.builder.
		Select(stateColumns...).
		From("swipe_states").
		Where(sq.Eq{"exporter_id": key.ExporterID, "buyer_id": key.BuyerID}).
		ToSql()
	if err != nil {
		return SwipeState{}, fmt.Errorf("failed to build state query: %w", err)
	}

	var buyerID string
	state, err := scanState(r.db.QueryRowContext(ctx, query, args...), &buyerID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewSwipeState(), nil
	}
	if err != nil {
		return SwipeState{}, fmt.Errorf("failed to get swipe state %s: %w", key, err)
	}
	return state, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutState upserts the pair state.
func (r *SQLRepository) PutState(ctx context.Context, key PairKey, state SwipeState) (err error) {
	if err := key.Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, r.dialect.system, "swipe_states", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	return r.putState(ctx, r.db, key, state)
}

func (r *SQLRepository) putState(ctx context.Context, ex execer, key PairKey, state SwipeState) error {
	var lastSwiped sql.NullTime
	if state.LastSwipedAt != nil {
		lastSwiped = sql.NullTime{Time: state.LastSwipedAt.UTC(), Valid: true}
	}

	query, args, err := r.builder.
		Insert("swipe_states").
		Columns("exporter_id", "buyer_id", "left_count", "right_count", "penalty_factor", "suppressed", "last_swiped_at", "updated_at").
		Values(key.ExporterID, key.BuyerID, state.LeftCount, state.RightCount, state.PenaltyFactor, state.Suppressed, lastSwiped, time.Now().UTC()).
		Suffix(`ON CONFLICT (exporter_id, buyer_id) DO UPDATE SET
			left_count = excluded.left_count,
			right_count = excluded.right_count,
			penalty_factor = excluded.penalty_factor,
			suppressed = excluded.suppressed,
			last_swiped_at = excluded.last_swiped_at,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build state upsert: %w", err)
	}

	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to upsert swipe state",
			slog.String("error", err.Error()),
			slog.String("exporter_id", key.ExporterID),
			slog.String("buyer_id", key.BuyerID))
		return fmt.Errorf("failed to put swipe state %s: %w", key, err)
	}
	return nil
}

// ListStates returns every stored state for an exporter keyed by buyer id.
func (r *SQLRepository) ListStates(ctx context.Context, exporterID string) (map[string]SwipeState, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}

	query, args, err := r.builder.
		Select(stateColumns...).
		From("swipe_states").
		Where(sq.Eq{"exporter_id": exporterID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build state list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list swipe states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]SwipeState)
	for rows.Next() {
		var buyerID string
		state, err := scanState(rows, &buyerID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swipe state: %w", err)
		}
		out[buyerID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swipe states: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner, buyerID *string) (SwipeState, error) {
	var (
		s          SwipeState
		lastSwiped sql.NullTime
	)
	if err := row.Scan(buyerID, &s.LeftCount, &s.RightCount, &s.PenaltyFactor, &s.Suppressed, &lastSwiped); err != nil {
		return SwipeState{}, err
	}
	if lastSwiped.Valid {
		s.LastSwipedAt = stamp(lastSwiped.Time)
	}
	return s, nil
}

// GetPreferenceVector loads an exporter's pattern counts or returns an empty vector.
func (r *SQLRepository) GetPreferenceVector(ctx context.Context, exporterID string) (PreferenceVector, error) {
	if exporterID == "" {
		return PreferenceVector{}, ErrMissingExporterID
	}

	pv := NewPreferenceVector()

	query, args, err := r.builder.
		Select("updated_at").
		From("preference_vectors").
		Where(sq.Eq{"exporter_id": exporterID}).
		ToSql()
	if err != nil {
		return pv, fmt.Errorf("failed to build vector query: %w", err)
	}
	var updatedAt time.Time
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pv, nil
	}
	if err != nil {
		return pv, fmt.Errorf("failed to get preference vector %s: %w", exporterID, err)
	}
	pv.UpdatedAt = stamp(updatedAt)

	query, args, err = r.builder.
		Select("direction", "pattern_key", "swipe_count").
		From("preference_patterns").
		Where(sq.Eq{"exporter_id": exporterID}).
		ToSql()
	if err != nil {
		return pv, fmt.Errorf("failed to build pattern query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pv, fmt.Errorf("failed to list preference patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dir   string
			key   string
			count int
		)
		if err := rows.Scan(&dir, &key, &count); err != nil {
			return pv, fmt.Errorf("failed to scan preference pattern: %w", err)
		}
		switch Direction(dir) {
		case Left:
			pv.LeftPatterns[key] = count
		case Right:
			pv.RightPatterns[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return pv, fmt.Errorf("failed to iterate preference patterns: %w", err)
	}
	return pv, nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func (r *SQLRepository) withTx(ctx context.Context, exporterID string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, r.dialect.txOptions)
	if err != nil {
		r.logger.Error("failed to begin transaction",
			slog.String("error", err.Error()),
			slog.String("exporter_id", exporterID))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction",
				slog.String("error", err.Error()))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit transaction",
			slog.String("error", err.Error()),
			slog.String("exporter_id", exporterID))
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// PutPreferenceVector writes the vector's counts in a single transaction.
func (r *SQLRepository) PutPreferenceVector(ctx context.Context, exporterID string, pv PreferenceVector) (err error) {
	if exporterID == "" {
		return ErrMissingExporterID
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, r.dialect.system, "preference_patterns", tracing.DBOperationUpsert)
	defer func() { endSpan(err) }()

	return r.withTx(ctx, exporterID, func(tx *sql.Tx) error {
		return r.putVector(ctx, tx, exporterID, pv)
	})
}

func (r *SQLRepository) putVector(ctx context.Context, ex execer, exporterID string, pv PreferenceVector) error {
	updatedAt := time.Now().UTC()
	if pv.UpdatedAt != nil {
		updatedAt = pv.UpdatedAt.UTC()
	}

	query, args, err := r.builder.
		Insert("preference_vectors").
		Columns("exporter_id", "updated_at").
		Values(exporterID, updatedAt).
		Suffix("ON CONFLICT (exporter_id) DO UPDATE SET updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build vector upsert: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert preference vector: %w", err)
	}

	for _, group := range []struct {
		dir      Direction
		patterns map[string]int
	}{{Left, pv.LeftPatterns}, {Right, pv.RightPatterns}} {
		for key, count := range group.patterns {
			query, args, err := r.builder.
				Insert("preference_patterns").
				Columns("exporter_id", "direction", "pattern_key", "swipe_count").
				Values(exporterID, string(group.dir), key, count).
				Suffix("ON CONFLICT (exporter_id, direction, pattern_key) DO UPDATE SET swipe_count = excluded.swipe_count").
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build pattern upsert: %w", err)
			}
			if _, err := ex.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to upsert preference pattern %q: %w", key, err)
			}
		}
	}
	return nil
}

// AppendSwipeEvent inserts into the append-only swipe log.
func (r *SQLRepository) AppendSwipeEvent(ctx context.Context, ev SwipeEvent) (err error) {
	if err := (PairKey{ExporterID: ev.ExporterID, BuyerID: ev.BuyerID}).Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, r.dialect.system, "swipe_events", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	return r.insertEvent(ctx, r.db, ev)
}

func (r *SQLRepository) insertEvent(ctx context.Context, ex execer, ev SwipeEvent) error {
	query, args, err := r.builder.
		Insert("swipe_events").
		Columns("id", "exporter_id", "buyer_id", "direction", "created_at").
		Values(ev.ID, ev.ExporterID, ev.BuyerID, string(ev.Direction), ev.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build swipe event insert: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append swipe event: %w", err)
	}
	return nil
}

// ApplySwipe writes the pair state, preference vector and swipe event in one
// transaction.
func (r *SQLRepository) ApplySwipe(ctx context.Context, key PairKey, state SwipeState, pv PreferenceVector, ev SwipeEvent) (err error) {
	if err := validateSwipe(key, ev); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, r.dialect.system, "swipe_events", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	return r.withTx(ctx, key.ExporterID, func(tx *sql.Tx) error {
		if err := r.putState(ctx, tx, key, state); err != nil {
			return err
		}
		if err := r.putVector(ctx, tx, key.ExporterID, pv); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, ev)
	})
}

// ListSwipeEvents returns the exporter's swipe log, oldest first.
func (r *SQLRepository) ListSwipeEvents(ctx context.Context, exporterID string) ([]SwipeEvent, error) {
	if exporterID == "" {
		return nil, ErrMissingExporterID
	}

	query, args, err := r.builder.
		Select("id", "exporter_id", "buyer_id", "direction", "created_at").
		From("swipe_events").
		Where(sq.Eq{"exporter_id": exporterID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build swipe event query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list swipe events: %w", err)
	}
	defer rows.Close()

	var out []SwipeEvent
	for rows.Next() {
		var (
			ev  SwipeEvent
			dir string
		)
		if err := rows.Scan(&ev.ID, &ev.ExporterID, &ev.BuyerID, &dir, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swipe event: %w", err)
		}
		ev.Direction = Direction(dir)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swipe events: %w", err)
	}
	return out, nil
}
