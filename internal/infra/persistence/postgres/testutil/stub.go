// Package testutil provides an in-memory stub database for postgres store tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq uint64

// StubConn records statements and keeps rows per table. The first column of
// an INSERT is the table's primary key: a duplicate key fails, unless the
// statement says ON CONFLICT ... DO NOTHING (no row written) or DO UPDATE
// (row replaced). UPDATE supports `SET col=$n, ...` with a `WHERE col=$n AND ...`
// equality filter. Statements inside a transaction work on a copy of the
// tables that replaces them on commit.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailPing   bool
	RowsErr    error
	FailTables map[string]bool
	Commits    int
	Rollbacks  int

	mu     sync.Mutex
	active *stubTx
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	return conn.OpenDB(), conn
}

// OpenDB returns another sql.DB over the same tables, standing in for a
// second client of one database. The handles share one transaction slot, so
// use them one at a time.
func (c *StubConn) OpenDB() *sql.DB {
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: c})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.active = &stubTx{conn: c, tables: cloneTables(c.Tables)}
	return c.active, nil
}

// ExecContext implements driver.ExecerContext. Statements outside a
// transaction are applied immediately.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "INSERT INTO"):
		return c.insert(query, args)
	case strings.HasPrefix(verb, "UPDATE"):
		return c.update(query, args)
	default:
		return driver.RowsAffected(0), nil
	}
}

// tables returns the rows statements currently see.
func (c *StubConn) tables() map[string][]map[string]any {
	if c.active != nil {
		return c.active.tables
	}
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	return c.Tables
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	tables := c.tables()
	pk := cols[0]
	up := strings.ToUpper(query)
	for i, existing := range tables[table] {
		if !sameValue(existing[pk], row[pk]) {
			continue
		}
		switch {
		case strings.Contains(up, "DO NOTHING"):
			return driver.RowsAffected(0), nil
		case strings.Contains(up, "DO UPDATE"):
			tables[table][i] = row
			return driver.RowsAffected(1), nil
		default:
			return nil, fmt.Errorf("duplicate key value violates unique constraint %q", table+"_pkey")
		}
	}
	tables[table] = append(tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) update(query string, args []driver.NamedValue) (driver.Result, error) {
	table, set, where, err := parseUpdate(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	arg := func(n int) (any, error) {
		if n < 1 || n > len(args) {
			return nil, fmt.Errorf("placeholder $%d out of range", n)
		}
		return args[n-1].Value, nil
	}
	var affected int64
	for _, row := range c.tables()[table] {
		match := true
		for col, n := range where {
			v, err := arg(n)
			if err != nil {
				return nil, err
			}
			if !sameValue(row[col], v) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		for col, n := range set {
			v, err := arg(n)
			if err != nil {
				return nil, err
			}
			row[col] = v
		}
		affected++
	}
	return driver.RowsAffected(affected), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	tableRows := c.tables()[table]
	values := make([][]driver.Value, 0, len(tableRows))
	for _, row := range tableRows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{
		cols: cols,
		rows: values,
		err:  c.RowsErr,
	}, nil
}

type stubTx struct {
	conn   *StubConn
	tables map[string][]map[string]any
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	defer func() { t.conn.active = nil }()
	if t.conn.FailCommit {
		t.conn.Rollbacks++
		return fmt.Errorf("commit fail")
	}
	t.conn.Tables = t.tables
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.active == t {
		t.conn.active = nil
		t.conn.Rollbacks++
	}
	return nil
}

func cloneTables(in map[string][]map[string]any) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(in))
	for table, rows := range in {
		copied := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			r := make(map[string]any, len(row))
			for k, v := range row {
				r[k] = v
			}
			copied = append(copied, r)
		}
		out[table] = copied
	}
	return out
}

// sameValue compares driver values; []byte is the only non-comparable kind.
func sameValue(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

// parseUpdate maps SET and WHERE columns to their 1-based placeholder.
func parseUpdate(query string) (string, map[string]int, map[string]int, error) {
	lower := strings.ToLower(strings.Join(strings.Fields(query), " "))
	setIdx := strings.Index(lower, " set ")
	whereIdx := strings.Index(lower, " where ")
	if !strings.HasPrefix(lower, "update ") || setIdx == -1 || whereIdx < setIdx {
		return "", nil, nil, fmt.Errorf("cannot parse update: %s", query)
	}
	table := strings.TrimSpace(lower[len("update "):setIdx])
	set, err := parseAssignments(strings.Split(lower[setIdx+len(" set "):whereIdx], ","))
	if err != nil {
		return "", nil, nil, err
	}
	where, err := parseAssignments(strings.Split(lower[whereIdx+len(" where "):], " and "))
	if err != nil {
		return "", nil, nil, err
	}
	return table, set, where, nil
}

func parseAssignments(parts []string) (map[string]int, error) {
	out := make(map[string]int, len(parts))
	for _, part := range parts {
		col, placeholder, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("cannot parse assignment %q", part)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(placeholder), "$"))
		if err != nil {
			return nil, fmt.Errorf("cannot parse placeholder in %q", part)
		}
		out[strings.TrimSpace(col)] = n
	}
	return out, nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(query)
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := query[len(selectPrefix):fromIdx]
	table := strings.TrimSpace(query[fromIdx+len(fromToken):])
	if table == "" {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	table = strings.Fields(table)[0]
	return strings.ToLower(table), splitColumns(cols), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
