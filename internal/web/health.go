package web

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// GoroutineTracker reports whether the background loops a process started
// are still running.
type GoroutineTracker struct {
	mu      sync.Mutex
	alive   map[string]bool
	lastErr map[string]string
}

func NewGoroutineTracker() *GoroutineTracker {
	return &GoroutineTracker{
		alive:   map[string]bool{},
		lastErr: map[string]string{},
	}
}

func (t *GoroutineTracker) set(name string, alive bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive[name] = alive
	if err != nil {
		t.lastErr[name] = err.Error()
	}
}

func (t *GoroutineTracker) Checks() map[string]string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.alive))
	for name, alive := range t.alive {
		switch {
		case alive:
			out[name] = "ok"
		case t.lastErr[name] != "":
			out[name] = t.lastErr[name]
		default:
			out[name] = "stopped"
		}
	}
	return out
}

// Go runs fn in a goroutine named name. An error returned after ctx is done
// is not recorded.
func (t *GoroutineTracker) Go(ctx context.Context, wg *sync.WaitGroup, name string, fn func(context.Context) error) {
	if wg != nil {
		wg.Add(1)
	}
	if t != nil {
		t.set(name, true, nil)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		err := fn(ctx)
		if ctx.Err() != nil {
			err = nil
		}
		if t != nil {
			t.set(name, false, err)
		}
	}()
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthFunc func(ctx context.Context) error

const readyTimeout = 2 * time.Second

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ok := true
	probe := func(name string, fn HealthFunc) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			ok = false
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	if s.Store == nil {
		ok = false
		checks["db"] = "unavailable"
	} else {
		probe("db", s.Store.Ping)
	}
	if s.TemporalHealth != nil {
		probe("temporal", s.TemporalHealth)
	}
	for name, status := range s.Goroutines.Checks() {
		if status != "ok" {
			ok = false
		}
		checks["goroutine."+name] = status
	}

	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}
