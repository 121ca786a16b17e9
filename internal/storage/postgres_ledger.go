package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS published_urls (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_published_urls_published_at ON published_urls(published_at);
`

// PostgresLedger keeps the ledger in a PostgreSQL table, for deployments
// without a persistent filesystem.
type PostgresLedger struct {
	db    *sqlx.DB
	log   *zap.Logger
	mu    sync.RWMutex
	index map[string]struct{}
}

var _ Ledger = (*PostgresLedger)(nil)

// OpenPostgresLedger connects to dsn and makes sure the table exists.
func OpenPostgresLedger(ctx context.Context, dsn string, log *zap.Logger) (*PostgresLedger, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	pl := NewPostgresLedger(db, log)
	if err := pl.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	pl.log.Info("PostgreSQL ledger connected")
	return pl, nil
}

// NewPostgresLedger wraps an open connection.
func NewPostgresLedger(db *sqlx.DB, log *zap.Logger) *PostgresLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresLedger{db: db, log: log, index: make(map[string]struct{})}
}

// Migrate creates the ledger table if it does not exist.
func (pl *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := pl.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load snapshots every stored identifier for Contains.
func (pl *PostgresLedger) Load(ctx context.Context) error {
	ids, err := pl.List(ctx)
	if err != nil {
		return err
	}
	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}
	pl.mu.Lock()
	pl.index = index
	pl.mu.Unlock()
	pl.log.Info("Loaded published URLs", zap.Int("count", len(ids)))
	return nil
}

func (pl *PostgresLedger) Contains(identifier string) bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	_, ok := pl.index[identifier]
	return ok
}

func (pl *PostgresLedger) Add(ctx context.Context, identifier string) (bool, error) {
	res, err := pl.db.ExecContext(ctx,
		`INSERT INTO published_urls (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`, identifier)
	if err != nil {
		return false, fmt.Errorf("failed to add url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add url: %w", err)
	}
	pl.mu.Lock()
	pl.index[identifier] = struct{}{}
	pl.mu.Unlock()
	return n > 0, nil
}

func (pl *PostgresLedger) Remove(ctx context.Context, identifier string) (bool, error) {
	res, err := pl.db.ExecContext(ctx, `DELETE FROM published_urls WHERE url = $1`, identifier)
	if err != nil {
		return false, fmt.Errorf("failed to remove url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove url: %w", err)
	}
	pl.mu.Lock()
	delete(pl.index, identifier)
	pl.mu.Unlock()
	return n > 0, nil
}

func (pl *PostgresLedger) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := pl.db.SelectContext(ctx, &ids, `SELECT url FROM published_urls ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	return ids, nil
}

func (pl *PostgresLedger) Search(ctx context.Context, keyword string) ([]string, error) {
	ids, err := pl.List(ctx)
	if err != nil {
		return nil, err
	}
	return matchKeyword(ids, keyword), nil
}

func (pl *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := pl.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM published_urls`); err != nil {
		return 0, fmt.Errorf("failed to count urls: %w", err)
	}
	return n, nil
}

func (pl *PostgresLedger) Clear(ctx context.Context) (int, error) {
	res, err := pl.db.ExecContext(ctx, `DELETE FROM published_urls`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear urls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear urls: %w", err)
	}
	pl.mu.Lock()
	pl.index = make(map[string]struct{})
	pl.mu.Unlock()
	return int(n), nil
}

func (pl *PostgresLedger) Close() error {
	if pl.db != nil {
		return pl.db.Close()
	}
	return nil
}
