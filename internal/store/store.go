// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the relational persistence layer backing §3's
// entities. It wraps a pgx connection pool; callers needing the
// checkpoint-plus-events atomicity invariant of §4.2/§4.3 use WithTx.
package store

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hedgeledger/chainindexer/internal/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the shared handle every component reads/writes the
// relational store through.
type Store struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

// Open connects to databaseURL, falling back to fallbackURL if the
// primary is unreachable (§6's FALLBACK_DATABASE_URL).
func Open(ctx context.Context, databaseURL, fallbackURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err == nil {
		if pingErr := pool.Ping(ctx); pingErr == nil {
			return &Store{pool: pool, log: logging.New("component", "store")}, nil
		}
		pool.Close()
	}

	if fallbackURL == "" {
		return nil, fmt.Errorf("connecting to primary database: %w", err)
	}

	fbPool, fbErr := pgxpool.New(ctx, fallbackURL)
	if fbErr != nil {
		return nil, fmt.Errorf("primary database unreachable (%v), fallback also failed: %w", err, fbErr)
	}
	if pingErr := fbPool.Ping(ctx); pingErr != nil {
		fbPool.Close()
		return nil, fmt.Errorf("primary database unreachable (%v), fallback ping failed: %w", err, pingErr)
	}
	return &Store{pool: fbPool, log: logging.New("component", "store", "using", "fallback")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pgx pool for components that need direct
// query access beyond what Store's typed helpers provide.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error or panic. Used by the indexer framework to
// satisfy the "event rows and checkpoint advance commit atomically"
// invariant of §4.2/§4.3.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op if already committed
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate applies every embedded migration in lexical filename order.
// Migrations are forward-only and idempotent-guarded via
// schema_migrations, per §6 ("forward-compatible, no destructive
// changes without an explicit migration step").
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var alreadyApplied bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&alreadyApplied)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		if alreadyApplied {
			continue
		}

		sqlBytes, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		s.log.Info("applying migration", "file", name)
		if err := s.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
				return fmt.Errorf("executing migration %s: %w", name, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}
