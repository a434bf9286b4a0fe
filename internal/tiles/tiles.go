// Package tiles is the hook into the map rendering pipeline's cache.
// The game never draws tiles itself; it only tells the renderer which
// ones went stale.
package tiles

import (
	"log/slog"
	"sync"
)

// Style sets whose rendered tiles the game can invalidate.
const (
	StyleControl = "TC"
	StyleCompete = "Compete"
)

// Expirer invalidates cached tiles for a region (a cell code or a
// place id) under one style set.
type Expirer interface {
	Expire(region, styleSet string)
}

// Noop ignores expiry requests. For deployments without a tile cache.
type Noop struct{}

func (Noop) Expire(string, string) {}

// Logging reports expirations through the server log, for wiring the
// real renderer in by tailing events.
type Logging struct {
	Log *slog.Logger
}

func (l Logging) Expire(region, styleSet string) {
	l.Log.Debug("tiles expired", "region", region, "style", styleSet)
}

// Event is one recorded expiry request.
type Event struct {
	Region   string
	StyleSet string
}

// Recorder captures expiry requests for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Expire(region, styleSet string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Region: region, StyleSet: styleSet})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
