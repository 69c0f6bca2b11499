package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fishercore/internal/infra/persistence/postgres/testutil"
	"fishercore/pkg/domain"
	"strings"
	"testing"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, conn
}

func createFisher(store *Store, wallet domain.Wallet) error {
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateFisher(domain.NewFisherRecord(wallet))
		return e
	})
	return err
}

func TestNewStoreAppliesDDLAndLoadsRows(t *testing.T) {
	_, conn := openStub(t)
	wallet := domain.Wallet{1}
	seeded := domain.NewFisherRecord(wallet)
	seeded.Address = domain.DeriveAddress(wallet)
	seeded.TotalCatches = 3
	seeded.Reputation = 130
	payload, err := json.Marshal(seeded)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	conn.Tables["fishers"] = []map[string]any{{"address": seeded.Address, "payload": payload}}

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS FISHERS") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected fishers DDL, got execs: %v", conn.Execs)
	}
	rec, ok := store.GetFisher(seeded.Address)
	if !ok {
		t.Fatalf("expected seeded fisher loaded")
	}
	if rec.TotalCatches != 3 || rec.Reputation != 130 || rec.Rank != domain.RankFisher {
		t.Fatalf("unexpected loaded record: %+v", rec)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
}

func TestRunInTransactionWritesRow(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore("ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	wallet := domain.Wallet{2}
	addr := domain.DeriveAddress(wallet)
	if err := createFisher(store, wallet); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.UpdateFisher(addr, func(r *domain.FisherRecord) error {
			next, _, err := domain.ApplyCatch(*r, 90)
			if err != nil {
				return err
			}
			*r = next
			return nil
		})
		return e
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows := conn.Tables["fishers"]
	if len(rows) != 1 {
		t.Fatalf("expected single row, got %d", len(rows))
	}
	if rows[0]["address"] != addr || rows[0]["wallet"] != wallet.String() {
		t.Fatalf("unexpected row keys: %v", rows[0])
	}
	var persisted domain.FisherRecord
	if err := json.Unmarshal(rows[0]["payload"].([]byte), &persisted); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if persisted.Reputation != domain.BigFishPoints || persisted.BigFishSpotted != 1 || persisted.Version != 2 {
		t.Fatalf("expected latest state persisted, got %+v", persisted)
	}
	if rows[0]["version"] != int64(2) {
		t.Fatalf("expected version column 2, got %v", rows[0]["version"])
	}
	if conn.Commits != 2 {
		t.Fatalf("expected two sql commits, got %d", conn.Commits)
	}
}

func TestPersistFailuresAbortCommit(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*testutil.StubConn)
	}{
		{"exec", func(c *testutil.StubConn) { c.FailTables = map[string]bool{"fishers": true} }},
		{"begin", func(c *testutil.StubConn) { c.FailBegin = true }},
		{"commit", func(c *testutil.StubConn) { c.FailCommit = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, conn := openStub(t)
			store, err := NewStore("", nil)
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			tc.setup(conn)
			if err := createFisher(store, domain.Wallet{3}); err == nil {
				t.Fatalf("expected persist failure")
			}
			if len(store.ListFishers()) != 0 {
				t.Fatalf("memory state must not advance when persistence fails")
			}
			if len(conn.Tables["fishers"]) != 0 {
				t.Fatalf("no rows expected, got %v", conn.Tables["fishers"])
			}
		})
	}
}

func TestFailedTransactionWritesNothing(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := createFisher(store, domain.Wallet{4}); err != nil {
		t.Fatalf("create: %v", err)
	}
	commits := conn.Commits
	if err := createFisher(store, domain.Wallet{4}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if conn.Commits != commits {
		t.Fatalf("failed transaction must not reach the database")
	}
}

func TestNewStoreErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial refused") })
		defer restore()
		if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
			t.Fatalf("expected open error, got %v", err)
		}
	})
	closedAfterFailure := []struct {
		name  string
		setup func(*testutil.StubConn)
	}{
		{"ping", func(c *testutil.StubConn) { c.FailPing = true }},
		{"ddl", func(c *testutil.StubConn) { c.FailExec = true }},
		{"query", func(c *testutil.StubConn) { c.FailTables = map[string]bool{"fishers": true} }},
	}
	for _, tc := range closedAfterFailure {
		t.Run(tc.name, func(t *testing.T) {
			db, conn := openStub(t)
			tc.setup(conn)
			if _, err := NewStore("", nil); err == nil {
				t.Fatalf("expected %s error", tc.name)
			}
			if err := db.Ping(); err == nil || !strings.Contains(err.Error(), "database is closed") {
				t.Fatalf("failed NewStore must close the pool, ping returned %v", err)
			}
		})
	}
	t.Run("decode", func(t *testing.T) {
		_, conn := openStub(t)
		conn.Tables["fishers"] = []map[string]any{{"address": "a", "payload": []byte("{bad")}}
		if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "decode fisher") {
			t.Fatalf("expected decode error, got %v", err)
		}
	})
	t.Run("rows", func(t *testing.T) {
		_, conn := openStub(t)
		conn.RowsErr = errors.New("stream broke")
		if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "iterate fishers") {
			t.Fatalf("expected iterate error, got %v", err)
		}
	})
}

func catch(store *Store, wallet domain.Wallet, score uint8) error {
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.UpdateFisher(domain.DeriveAddress(wallet), func(r *domain.FisherRecord) error {
			next, _, err := domain.ApplyCatch(*r, score)
			if err != nil {
				return err
			}
			*r = next
			return nil
		})
		return e
	})
	return err
}

// openPair opens two stores over the same stub tables, like two service
// instances sharing one database.
func openPair(t *testing.T) (*Store, *Store, *testutil.StubConn) {
	t.Helper()
	first, conn := testutil.NewStubDB()
	second := conn.OpenDB()
	handles := []*sql.DB{first, second}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		db := handles[0]
		handles = handles[1:]
		return db, nil
	})
	t.Cleanup(restore)
	a, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore a: %v", err)
	}
	b, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore b: %v", err)
	}
	return a, b, conn
}

func TestSecondStoreSeesRowsAndCannotDuplicate(t *testing.T) {
	a, b, conn := openPair(t)
	wallet := domain.Wallet{5}
	if err := createFisher(a, wallet); err != nil {
		t.Fatalf("create on a: %v", err)
	}
	if err := createFisher(b, wallet); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second store must see the record, got %v", err)
	}
	for i, store := range []*Store{b, a, b} {
		if err := catch(store, wallet, 90); err != nil {
			t.Fatalf("catch %d: %v", i, err)
		}
	}
	rows := conn.Tables["fishers"]
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	var persisted domain.FisherRecord
	if err := json.Unmarshal(rows[0]["payload"].([]byte), &persisted); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if persisted.TotalCatches != 3 || persisted.Reputation != 3*domain.BigFishPoints || persisted.Version != 4 {
		t.Fatalf("a catch was lost between stores: %+v", persisted)
	}
	var stats domain.FisherRecord
	if err := a.View(context.Background(), func(v domain.TransactionView) error {
		stats, _ = v.FindFisher(domain.DeriveAddress(wallet))
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if stats.TotalCatches != 3 {
		t.Fatalf("view must read the database, got %+v", stats)
	}
}

func TestPersistDetectsConcurrentWriter(t *testing.T) {
	a, _, conn := openPair(t)
	wallet := domain.Wallet{6}
	if err := createFisher(a, wallet); err != nil {
		t.Fatalf("create: %v", err)
	}
	current, _ := a.GetFisher(domain.DeriveAddress(wallet))
	stale := current
	stale.Version = current.Version - 1
	next := current
	next.TotalCatches++
	next.Version = current.Version + 1

	ctx := context.Background()
	err := a.persist(ctx, []domain.Change{{Entity: domain.EntityFisher, Action: domain.ActionUpdate, Before: stale, After: next}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for stale pre-image, got %v", err)
	}
	err = a.persist(ctx, []domain.Change{{Entity: domain.EntityFisher, Action: domain.ActionCreate, After: current}})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists for duplicate insert, got %v", err)
	}
	var persisted domain.FisherRecord
	if err := json.Unmarshal(conn.Tables["fishers"][0]["payload"].([]byte), &persisted); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if persisted.TotalCatches != 0 || persisted.Version != 1 {
		t.Fatalf("rejected writes must leave the row alone, got %+v", persisted)
	}
}
