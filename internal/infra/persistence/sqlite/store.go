package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fishercore/internal/infra/persistence/memory"
	"fishercore/pkg/domain"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "fishercore.db"

// connParams lets several processes share one file: writers take the lock at
// BEGIN and wait for each other instead of failing with SQLITE_BUSY.
const connParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"

const schema = `CREATE TABLE IF NOT EXISTS fishers (
	address TEXT PRIMARY KEY,
	wallet TEXT NOT NULL UNIQUE,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 0
)`

const insertFisher = `INSERT INTO fishers(address,wallet,payload,updated_at,version) VALUES(?,?,?,?,?)
ON CONFLICT DO NOTHING`

const updateFisher = `UPDATE fishers SET payload=?, updated_at=?, version=? WHERE address=? AND version=?`

// Store persists fisher records to SQLite, one row per derived address. The
// database is authoritative: each transaction starts from the rows on disk
// and its writes only apply if no other handle wrote the same rows since.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+connParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection per handle; other handles and processes are kept apart
	// by the database lock.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fishers table: %w", err)
	}
	s := &Store{db: db, path: path}
	snapshot, err := s.loadSnapshot(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist), memory.WithLoader(s.loadSnapshot))...)
	s.ImportState(snapshot)
	return s, nil
}

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
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
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

// persist writes changes in one SQL transaction. A create that finds the row
// already present is ErrAlreadyExists; an update whose pre-image version no
// longer matches is ErrConflict.
func (s *Store) persist(ctx context.Context, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
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
		updatedAt := rec.UpdatedAt.Format(time.RFC3339Nano)
		var res sql.Result
		switch change.Action {
		case domain.ActionCreate:
			res, err = tx.ExecContext(ctx, insertFisher, rec.Address, rec.Wallet.String(), data, updatedAt, rec.Version)
		default:
			before, _ := change.Before.(domain.FisherRecord)
			res, err = tx.ExecContext(ctx, updateFisher, data, updatedAt, rec.Version, rec.Address, before.Version)
		}
		if err != nil {
			return fmt.Errorf("write fisher %s: %w", rec.Address, err)
		}
		if err := checkWritten(res, change.Action, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func checkWritten(res sql.Result, action domain.Action, rec domain.FisherRecord) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if action == domain.ActionCreate {
		return fmt.Errorf("fisher %s: %w", rec.Wallet, domain.ErrAlreadyExists)
	}
	return fmt.Errorf("fisher %s at version %d: %w", rec.Wallet, rec.Version-1, domain.ErrConflict)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
