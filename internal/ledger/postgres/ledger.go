// Package postgres persists the run ledger in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool for the ledger.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Ledger implements ledger.Ledger on a Postgres table.
type Ledger struct {
	pool  pool
	table string
	clock harvest.Clock
}

// New creates a ledger backed by a new connection pool.
func New(ctx context.Context, cfg Config, clock harvest.Clock) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return NewWithPool(p, cfg.Table, clock)
}

// NewWithPool wraps an existing pool, typically a mock in tests.
func NewWithPool(p pool, table string, clock harvest.Clock) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = "harvest_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: p, table: table, clock: clock}, nil
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// BeginRun inserts a running record for the phase.
func (l *Ledger) BeginRun(ctx context.Context, phase string) (ledger.RunRecord, error) {
	record := ledger.RunRecord{
		ID:        uuid.New(),
		Phase:     phase,
		StartedAt: l.clock.Now().UTC(),
		Status:    ledger.StatusRunning,
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, phase, started_at, status)
		VALUES ($1, $2, $3, $4);
	`, l.table)
	if _, err := l.pool.Exec(ctx, query, record.ID, record.Phase, record.StartedAt, record.Status); err != nil {
		return ledger.RunRecord{}, fmt.Errorf("begin run: %w", err)
	}
	return record, nil
}

// FinishRun writes the final counters and status for the record.
func (l *Ledger) FinishRun(ctx context.Context, record ledger.RunRecord) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, batches = $3, messages = $4,
			committed = $5, succeeded = $6, soft_exhausted = $7,
			hard_failures = $8, resolver_misses = $9, poison = $10,
			error_message = $11
		WHERE id = $12;
	`, l.table)
	finishedAt := record.FinishedAt
	if finishedAt == nil {
		now := l.clock.Now().UTC()
		finishedAt = &now
	}
	if _, err := l.pool.Exec(ctx, query,
		finishedAt,
		record.Status,
		record.Batches,
		record.Messages,
		record.Committed,
		record.Succeeded,
		record.SoftExhausted,
		record.HardFailures,
		record.ResolverMisses,
		record.Poison,
		record.Error,
		record.ID,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run for the phase, or across
// phases when phase is empty.
func (l *Ledger) LatestRun(ctx context.Context, phase string) (ledger.RunRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, phase, started_at, finished_at, status, batches, messages,
			committed, succeeded, soft_exhausted, hard_failures,
			resolver_misses, poison, error_message
		FROM %s
		WHERE ($1 = '' OR phase = $1)
		ORDER BY started_at DESC
		LIMIT 1;
	`, l.table)
	var record ledger.RunRecord
	err := l.pool.QueryRow(ctx, query, phase).Scan(
		&record.ID,
		&record.Phase,
		&record.StartedAt,
		&record.FinishedAt,
		&record.Status,
		&record.Batches,
		&record.Messages,
		&record.Committed,
		&record.Succeeded,
		&record.SoftExhausted,
		&record.HardFailures,
		&record.ResolverMisses,
		&record.Poison,
		&record.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.RunRecord{}, ledger.ErrNoRuns
		}
		return ledger.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	return record, nil
}
