package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLog is an in-process append-only Writer for the memory storage driver.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) InsertAuditEntry(ctx context.Context, entry Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return fmt.Sprintf("audit_%d", len(l.entries)), nil
}

// Entries returns a copy of the log, optionally filtered by incident id.
func (l *MemoryLog) Entries(incidentID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if incidentID == "" || e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out
}
