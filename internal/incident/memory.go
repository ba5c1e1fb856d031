package incident

import (
	"context"
	"sort"
	"sync"
)

type key struct {
	id string
	ts string
}

// MemoryStore keeps incidents in process. It backs the "memory" storage
// driver and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[key]Incident
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[key]Incident{}}
}

func (s *MemoryStore) CreateIncident(ctx context.Context, inc Incident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[key]Incident{}
	}
	k := key{id: inc.ID, ts: inc.Timestamp}
	if _, ok := s.items[k]; ok {
		return ErrAlreadyExists
	}
	s.items[k] = inc
	return nil
}

func (s *MemoryStore) UpdateIncident(ctx context.Context, incidentID, timestamp string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{id: incidentID, ts: timestamp}
	cur, ok := s.items[k]
	if !ok {
		return ErrNotFound
	}
	s.items[k] = patch.Apply(cur)
	return nil
}

func (s *MemoryStore) GetIncident(ctx context.Context, incidentID, timestamp string) (Incident, error) {
	if err := ctx.Err(); err != nil {
		return Incident{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.items[key{id: incidentID, ts: timestamp}]
	if !ok {
		return Incident{}, ErrNotFound
	}
	return inc, nil
}

func (s *MemoryStore) LatestIncident(ctx context.Context, incidentID string) (Incident, error) {
	if err := ctx.Err(); err != nil {
		return Incident{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest Incident
		found  bool
	)
	for k, inc := range s.items {
		if k.id != incidentID {
			continue
		}
		if !found || inc.Timestamp > latest.Timestamp {
			latest = inc
			found = true
		}
	}
	if !found {
		return Incident{}, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) ListIncidentsByHealingStatus(ctx context.Context, healingStatus string, limit int) ([]Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Incident, 0)
	for _, inc := range s.items {
		if inc.HealingStatus == healingStatus {
			out = append(out, inc)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
