// Package postgres persists capture flow snapshots in PostgreSQL so a
// restarted worker can rehydrate its recent history.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docuflow/capture/internal/core/domain"
)

type FlowRepository struct {
	db *sql.DB
}

func NewFlowRepository(db *sql.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FlowRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS capture_flows (
	id TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS capture_flow_pointer (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	active_flow_id TEXT,
	has_active BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_capture_flows_created_at ON capture_flows(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with the given one. The retained set is
// small by contract, so a full rewrite inside one transaction is simpler and
// safer than diffing.
func (r *FlowRepository) Save(ctx context.Context, snapshot *domain.FlowSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `DELETE FROM capture_flows`); err != nil {
		return fmt.Errorf("clear flows: %w", err)
	}

	for id, flow := range snapshot.Flows {
		payload, err := json.Marshal(flow)
		if err != nil {
			return fmt.Errorf("marshal flow %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO capture_flows (id, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4)
`, id, payload, flow.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("insert flow %s: %w", id, err)
		}
	}

	var activeID sql.NullString
	if snapshot.HasActiveFlow {
		activeID = sql.NullString{String: snapshot.ActiveFlowID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO capture_flow_pointer (singleton, active_flow_id, has_active, updated_at)
VALUES (TRUE, $1, $2, $3)
ON CONFLICT (singleton) DO UPDATE
SET active_flow_id = EXCLUDED.active_flow_id,
    has_active = EXCLUDED.has_active,
    updated_at = EXCLUDED.updated_at
`, activeID, snapshot.HasActiveFlow, now)
	if err != nil {
		return fmt.Errorf("upsert active pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// Load rehydrates the stored snapshot. An empty database yields an empty
// snapshot, not an error.
func (r *FlowRepository) Load(ctx context.Context) (*domain.FlowSnapshot, error) {
	snapshot := &domain.FlowSnapshot{
		Flows: make(map[string]*domain.Flow),
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, payload
FROM capture_flows
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		var flow domain.Flow
		if err := json.Unmarshal(payload, &flow); err != nil {
			return nil, fmt.Errorf("unmarshal flow %s: %w", id, err)
		}
		snapshot.Flows[id] = &flow
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}

	var activeID sql.NullString
	var hasActive bool
	err = r.db.QueryRowContext(ctx, `
SELECT active_flow_id, has_active
FROM capture_flow_pointer
WHERE singleton
`).Scan(&activeID, &hasActive)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return snapshot, nil
	case err != nil:
		return nil, fmt.Errorf("load active pointer: %w", err)
	}

	if hasActive && activeID.Valid {
		if _, ok := snapshot.Flows[activeID.String]; ok {
			snapshot.ActiveFlowID = activeID.String
			snapshot.HasActiveFlow = true
		}
	}
	return snapshot, nil
}
