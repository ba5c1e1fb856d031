package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"time"
)

var errTest = errors.New("test error")

type fakeResult struct {
	rows int64
}

func (fakeResult) LastInsertId() (int64, error)   { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.values[i].(string)
		case *[]byte:
			*d = r.values[i].([]byte)
		case *time.Time:
			*d = r.values[i].(time.Time)
		case *sql.NullTime:
			*d = r.values[i].(sql.NullTime)
		case *sql.NullString:
			*d = r.values[i].(sql.NullString)
		case *bool:
			*d = r.values[i].(bool)
		case *int:
			*d = r.values[i].(int)
		default:
			// ignore unsupported
		}
	}
	return nil
}

// fakeConn returns rows in order; once exhausted it keeps returning row.
type fakeConn struct {
	row         rowScanner
	rows        []rowScanner
	affected    *int64
	execErr     error
	queries     []string
	args        [][]any
	execQueries []string
	execArgs    [][]any
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.execQueries = append(c.execQueries, query)
	c.execArgs = append(c.execArgs, args)
	if c.execErr != nil {
		return fakeResult{}, c.execErr
	}
	n := int64(1)
	if c.affected != nil {
		n = *c.affected
	}
	return fakeResult{rows: n}, nil
}

func (c *fakeConn) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	if len(c.rows) > 0 {
		row := c.rows[0]
		c.rows = c.rows[1:]
		return row
	}
	return c.row
}

func (c *fakeConn) lastArgs() []any {
	if len(c.args) == 0 {
		return nil
	}
	return c.args[len(c.args)-1]
}

func affected(n int64) *int64 { return &n }

type fakeDriver struct{}

type fakeDriverConn struct{}

func (fakeDriverConn) Prepare(query string) (driver.Stmt, error) { return nil, nil }
func (fakeDriverConn) Close() error                              { return nil }
func (fakeDriverConn) Begin() (driver.Tx, error)                  { return nil, nil }
func (fakeDriverConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return fakeResult{}, nil
}
func (fakeDriverConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return fakeRows{}, nil
}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeDriverConn{}, nil }

type fakeRows struct{}

func (fakeRows) Columns() []string              { return []string{} }
func (fakeRows) Close() error                   { return nil }
func (fakeRows) Next(dest []driver.Value) error { return io.EOF }

var registerOnce sync.Once

const testDriverName = "autoheal_test_postgres"

func registerFakeDriver() {
	registerOnce.Do(func() {
		defer func() { _ = recover() }()
		sql.Register(testDriverName, fakeDriver{})
	})
}
