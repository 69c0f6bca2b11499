// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics while keeping one JSONB row per fisher record.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fishercore/internal/infra/persistence/memory"
	"fishercore/pkg/domain"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/fishercore?sslmode=disable"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS fishers (
	address TEXT PRIMARY KEY,
	wallet TEXT NOT NULL UNIQUE,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL DEFAULT 0
)`,
	`ALTER TABLE fishers ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0`,
}

const insertFisher = `INSERT INTO fishers(address,wallet,payload,updated_at,version) VALUES($1,$2,$3,$4,$5) ON CONFLICT DO NOTHING`

const updateFisher = `UPDATE fishers SET payload=$1, updated_at=$2, version=$3 WHERE address=$4 AND version=$5`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists fisher records to Postgres. Every transaction reads the
// current rows first and writes back conditionally, so several service
// instances can share one database.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the fishers table exists and hydrates the in-memory store from it.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db}
	snapshot, err := s.prepare(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist), memory.WithLoader(s.loadSnapshot))...)
	s.ImportState(snapshot)
	return s, nil
}

func (s *Store) prepare(ctx context.Context) (memory.Snapshot, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return memory.Snapshot{}, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return memory.Snapshot{}, fmt.Errorf("ensure fishers table: %w", err)
		}
	}
	return s.loadSnapshot(ctx)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadSnapshot(ctx context.Context) (memory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, payload FROM fishers`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select fishers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Fishers: make(map[string]domain.FisherRecord)}
	for rows.Next() {
		var (
			address string
			payload []byte
		)
		if err := rows.Scan(&address, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan fisher: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var rec domain.FisherRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode fisher %s: %w", address, err)
		}
		snapshot.Fishers[address] = rec
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate fishers: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		rec, ok := change.After.(domain.FisherRecord)
		if !ok {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode fisher %s: %w", rec.Address, err)
		}
		var res sql.Result
		if change.Action == domain.ActionCreate {
			res, err = tx.ExecContext(ctx, insertFisher, rec.Address, rec.Wallet.String(), data, rec.UpdatedAt, int64(rec.Version))
		} else {
			before, _ := change.Before.(domain.FisherRecord)
			res, err = tx.ExecContext(ctx, updateFisher, data, rec.UpdatedAt, int64(rec.Version), rec.Address, int64(before.Version))
		}
		if err != nil {
			return fmt.Errorf("write fisher %s: %w", rec.Address, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			if change.Action == domain.ActionCreate {
				return fmt.Errorf("fisher %s: %w", rec.Wallet, domain.ErrAlreadyExists)
			}
			return fmt.Errorf("fisher %s at version %d: %w", rec.Wallet, rec.Version-1, domain.ErrConflict)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
