package engine

import (
	"context"
	"os"
	"sync"
)

// Handle owns the pending-or-completed outcome of one flight. It is shared
// by reference with every caller that asked for the same cache key.
type Handle struct {
	done chan struct{}
	path string
	err  error
}

// Wait blocks until the flight finishes or the caller gives up. An
// abandoned flight keeps running and still populates the cache for any
// other waiter.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return h.path, h.err
	}
}

func (h *Handle) completed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// flightGroup ensures at most one in-flight operation per cache key.
// Successful handles stay registered while their file exists; failed ones
// are dropped so the next caller triggers a fresh attempt.
type flightGroup struct {
	mu      sync.Mutex
	flights map[string]*Handle
}

func newFlightGroup() *flightGroup {
	return &flightGroup{flights: make(map[string]*Handle)}
}

func (g *flightGroup) getOrStart(key string, fn func() (string, error)) *Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h, ok := g.flights[key]; ok {
		if !h.completed() {
			return h
		}
		if h.err == nil && fileExists(h.path) {
			return h
		}
		delete(g.flights, key)
	}

	h := &Handle{done: make(chan struct{})}
	g.flights[key] = h
	go func() {
		h.path, h.err = fn()
		close(h.done)
		if h.err != nil {
			g.mu.Lock()
			if g.flights[key] == h {
				delete(g.flights, key)
			}
			g.mu.Unlock()
		}
	}()
	return h
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
