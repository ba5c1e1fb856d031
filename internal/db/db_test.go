package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestCloseNil(t *testing.T) {
	var d *DB
	if err := d.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestNewDBOpenError(t *testing.T) {
	old := openDB
	openDB = func(driverName, dataSourceName string) (*sql.DB, error) {
		return nil, errors.New("open error")
	}
	defer func() { openDB = old }()

	if _, err := NewDB("dsn"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	if cfg.MaxOpenConns != 25 || cfg.MaxIdleConns != 5 || cfg.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("pool: %#v", cfg)
	}
}

func TestNewDBWithFakeDriver(t *testing.T) {
	registerFakeDriver()
	oldOpen := openDB
	openDB = func(driverName, dataSourceName string) (*sql.DB, error) {
		if driverName != "postgres" {
			t.Fatalf("driver: %s", driverName)
		}
		return sql.Open(testDriverName, dataSourceName)
	}
	defer func() { openDB = oldOpen }()

	d, err := NewDBWithPool("dsn", PoolConfig{MaxOpenConns: 50, MaxIdleConns: 10, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Skipf("driver error: %v", err)
	}
	if d.Conn() == nil {
		t.Fatalf("expected conn")
	}
	_ = d.Close()
}

func TestNilDBNotInitialized(t *testing.T) {
	var d *DB
	if err := d.Ping(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := d.GetApproval(context.Background(), "a"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 10: 10, 500: 200}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Fatalf("clampLimit(%d)=%d want %d", in, got, want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) || isUniqueViolation(errTest) {
		t.Fatalf("unexpected unique violation")
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := newID("audit")
	if len(id) < 7 || id[:6] != "audit_" {
		t.Fatalf("id: %s", id)
	}
	if newID("audit") == id {
		t.Fatalf("ids should differ")
	}
}
