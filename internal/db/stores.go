package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"autoheal/internal/approvals"
	"autoheal/internal/audit"
	"autoheal/internal/incident"
)

type IncidentStore interface {
	incident.Store
	incident.Lister
}

// Stores bundles the storage collaborators a binary wires into its
// components. Both drivers provide the same contracts.
type Stores struct {
	Incidents IncidentStore
	Approvals approvals.Ledger
	Audit     *audit.Recorder
	DB        *DB
}

var newStoreDB = NewDB

// OpenStores opens "postgres" (the default) or "memory" storage.
func OpenStores(driver, dsn string, logger *slog.Logger) (*Stores, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres":
		d, err := newStoreDB(dsn)
		if err != nil {
			return nil, err
		}
		return &Stores{Incidents: d, Approvals: d, Audit: audit.NewWithDB(d, logger), DB: d}, nil
	case "memory":
		return &Stores{
			Incidents: incident.NewMemoryStore(),
			Approvals: approvals.NewMemoryLedger(),
			Audit:     audit.NewWithDB(audit.NewMemoryLog(), logger),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Ping reports storage readiness. Memory storage is always ready.
func (s *Stores) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Ping(ctx)
}

func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	return s.DB.Close()
}
