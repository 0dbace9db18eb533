package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
)

var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresArchive keeps a permanent copy of every run: one row per run in
// scene_runs, overwritten on each snapshot, and one row per timeline event in
// scene_events.
type PostgresArchive struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
}

var _ orchestrator.Recorder = (*PostgresArchive)(nil)

// NewPostgresArchive connects to databaseURL. schema defaults to "public".
func NewPostgresArchive(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresArchive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pg pool: %w", err)
	}
	a, err := NewPostgresArchiveWithPool(pool, schema, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// NewPostgresArchiveWithPool wraps an existing pool.
func NewPostgresArchiveWithPool(pool *pgxpool.Pool, schema string, logger *slog.Logger) (*PostgresArchive, error) {
	if schema == "" {
		schema = "public"
	}
	if !schemaName.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresArchive{pool: pool, schema: schema, logger: logger}, nil
}

func (a *PostgresArchive) runsTable() string {
	return a.schema + ".scene_runs"
}

func (a *PostgresArchive) eventsTable() string {
	return a.schema + ".scene_events"
}

func (a *PostgresArchive) schemaSQL() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			run_id      UUID PRIMARY KEY,
			title       TEXT NOT NULL,
			scenario    TEXT NOT NULL DEFAULT '',
			turn        INTEGER NOT NULL,
			total_turns INTEGER NOT NULL,
			phase       TEXT NOT NULL,
			concluded   BOOLEAN NOT NULL DEFAULT FALSE,
			scene       JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id          BIGSERIAL PRIMARY KEY,
			run_id      UUID NOT NULL REFERENCES %[1]s(run_id) ON DELETE CASCADE,
			turn        INTEGER NOT NULL,
			type        TEXT NOT NULL,
			speaker     TEXT NOT NULL DEFAULT '',
			payload     JSONB NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS scene_events_run_idx ON %[2]s (run_id, id);
	`, a.runsTable(), a.eventsTable())
}

// EnsureSchema creates the archive tables once per archive instance.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	if _, err := a.pool.Exec(ctx, a.schemaSQL()); err != nil {
		return fmt.Errorf("failed to create archive tables: %w", err)
	}
	a.ready = true
	return nil
}

// SaveSnapshot upserts the run row and appends the snapshot's event in one
// transaction.
func (a *PostgresArchive) SaveSnapshot(ctx context.Context, snap orchestrator.Snapshot) error {
	if snap.Scene == nil {
		return errors.New("snapshot scene cannot be nil")
	}
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}
	scene, err := json.Marshal(snap.Scene)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s := snap.Scene
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (run_id, title, scenario, turn, total_turns, phase, concluded, scene, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			turn = EXCLUDED.turn,
			phase = EXCLUDED.phase,
			concluded = EXCLUDED.concluded,
			scene = EXCLUDED.scene,
			updated_at = EXCLUDED.updated_at
	`, a.runsTable()),
		snap.RunID, s.Seed.Title, s.Seed.Scenario, snap.Turn, s.TotalTurns,
		snap.Phase, s.IsConcluded, scene, snap.At,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if ev := snap.Event; ev != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (run_id, turn, type, speaker, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.eventsTable()),
			snap.RunID, ev.Turn, string(ev.Type), ev.Speaker, payload, snap.At,
		)
		if err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit archive tx: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases the pool.
func (a *PostgresArchive) Close() {
	a.pool.Close()
	a.logger.Info("Postgres archive closed")
}
