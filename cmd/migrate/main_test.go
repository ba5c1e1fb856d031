package main

import (
	"database/sql"
	"errors"
	"os"
	"testing"

	"autoheal/internal/config"
)

func stubAction(t *testing.T, name string, fn migrateFunc) {
	t.Helper()
	old, had := actions[name]
	actions[name] = fn
	t.Cleanup(func() {
		if had {
			actions[name] = old
		} else {
			delete(actions, name)
		}
	})
}

func TestRunMissingAction(t *testing.T) {
	if err := run([]string{"-dsn", "postgres://example"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunUnknownAction(t *testing.T) {
	if err := run([]string{"-dsn", "postgres://example", "-action", "nope"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunMissingDSN(t *testing.T) {
	t.Setenv(config.EnvPostgresDSN, "")
	if err := run([]string{"-action", "up"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolveDSNPrecedence(t *testing.T) {
	t.Setenv(config.EnvPostgresDSN, "postgres://env")
	got, err := resolveDSN("postgres://flag", "")
	if err != nil || got != "postgres://flag" {
		t.Fatalf("flag: %q %v", got, err)
	}
	got, err = resolveDSN("", "")
	if err != nil || got != "postgres://env" {
		t.Fatalf("env: %q %v", got, err)
	}
}

func TestResolveDSNFromConfig(t *testing.T) {
	t.Setenv(config.EnvPostgresDSN, "")
	oldLoad := loadConfig
	defer func() { loadConfig = oldLoad }()

	loadConfig = func(path string) (config.Config, error) {
		var cfg config.Config
		cfg.Storage.PostgresDSN = "postgres://file"
		return cfg, nil
	}
	got, err := resolveDSN("", "cfg.json")
	if err != nil || got != "postgres://file" {
		t.Fatalf("config: %q %v", got, err)
	}

	loadConfig = func(path string) (config.Config, error) {
		var cfg config.Config
		cfg.Storage.Driver = config.StorageDriverMemory
		return cfg, nil
	}
	if _, err := resolveDSN("", "cfg.json"); err == nil {
		t.Fatalf("expected memory driver error")
	}

	loadConfig = func(path string) (config.Config, error) { return config.Config{}, errors.New("boom") }
	if _, err := resolveDSN("", "cfg.json"); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestRunAppliesEmbeddedMigrations(t *testing.T) {
	var gotDir string
	var gotDB *sql.DB
	stubAction(t, "up", func(db *sql.DB, dir string) error {
		gotDB = db
		gotDir = dir
		return nil
	})
	if err := run([]string{"-dsn", "postgres://example", "-action", "UP"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if gotDir != "." || gotDB == nil {
		t.Fatalf("dir %q db %v", gotDir, gotDB)
	}
}

func TestRunUsesDiskDir(t *testing.T) {
	var gotDir string
	stubAction(t, "status", func(db *sql.DB, dir string) error {
		gotDir = dir
		return errors.New("no database")
	})
	if err := run([]string{"-dsn", "postgres://example", "-action", "status", "-dir", "./migrations"}); err == nil {
		t.Fatalf("expected action error")
	}
	if gotDir != "./migrations" {
		t.Fatalf("dir: %q", gotDir)
	}
}

func TestRunOpenError(t *testing.T) {
	oldOpen := openDB
	openDB = func(dsn string) (*sql.DB, error) { return nil, errors.New("open fail") }
	defer func() { openDB = oldOpen }()
	if err := run([]string{"-dsn", "postgres://example", "-action", "up"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainFatalOnError(t *testing.T) {
	oldFatal := fatalf
	called := false
	fatalf = func(format string, args ...any) { called = true }
	defer func() { fatalf = oldFatal }()

	oldArgs := os.Args
	os.Args = []string{"migrate"}
	defer func() { os.Args = oldArgs }()

	main()
	if !called {
		t.Fatalf("expected fatal")
	}
}
