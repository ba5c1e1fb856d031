package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"autoheal/internal/config"
	"autoheal/internal/logging"
	"autoheal/migrations"
)

func main() {
	logging.Init("migrate", nil)
	if err := run(os.Args[1:]); err != nil {
		fatalf("migrate: %v", err)
	}
}

var fatalf = func(format string, args ...any) {
	slog.Error("fatal", "error", fmt.Sprintf(format, args...))
	os.Exit(1)
}
var loadConfig = config.LoadConfig
var openDB = func(dsn string) (*sql.DB, error) { return sql.Open("postgres", dsn) }

// migrateFunc applies one goose action against dir inside fsys.
type migrateFunc func(db *sql.DB, dir string) error

var actions = map[string]migrateFunc{
	"up":     func(db *sql.DB, dir string) error { return goose.Up(db, dir) },
	"down":   func(db *sql.DB, dir string) error { return goose.Down(db, dir) },
	"redo":   func(db *sql.DB, dir string) error { return goose.Redo(db, dir) },
	"status": func(db *sql.DB, dir string) error { return goose.Status(db, dir) },
	"version": func(db *sql.DB, dir string) error {
		v, err := goose.GetDBVersion(db)
		if err == nil {
			slog.Info("schema version", "version", v)
		}
		return err
	},
}

// resolveDSN prefers -dsn, then the environment override, then the config file.
func resolveDSN(flagDSN, configPath string) (string, error) {
	if dsn := strings.TrimSpace(flagDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(os.Getenv(config.EnvPostgresDSN)); dsn != "" {
		return dsn, nil
	}
	if configPath == "" {
		return "", errors.New("dsn required")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.StorageDriver() != config.StorageDriverPostgres {
		return "", fmt.Errorf("storage driver %q has no schema to migrate", cfg.StorageDriver())
	}
	return cfg.Storage.PostgresDSN, nil
}

func run(args []string) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsnFlag := flags.String("dsn", "", "postgres DSN")
	configPath := flags.String("config", "", "path to config JSON")
	dir := flags.String("dir", "", "migrations dir on disk (defaults to the embedded set)")
	action := flags.String("action", "", "up/down/status/version/redo")
	if err := flags.Parse(args); err != nil {
		return err
	}
	name := strings.ToLower(strings.TrimSpace(*action))
	if name == "" {
		return errors.New("action required")
	}
	apply, ok := actions[name]
	if !ok {
		return fmt.Errorf("unknown action %q", *action)
	}
	dsn, err := resolveDSN(*dsnFlag, *configPath)
	if err != nil {
		return err
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	var source fs.FS = migrations.EmbeddedFS
	migrationsDir := "."
	if *dir != "" {
		source = nil
		migrationsDir = *dir
	}
	goose.SetBaseFS(source)
	defer goose.SetBaseFS(nil)

	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("running migrations", "action", name, "dir", migrationsDir, "embedded", source != nil)
	return apply(db, migrationsDir)
}
