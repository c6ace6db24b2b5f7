// Package usage persists the per-profile character counters kept by
// backend.Profile so that cumulative usage survives restarts.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/narrator/internal/backend"
)

// DefaultFlushInterval is used when the flusher is created with a
// non-positive interval.
const DefaultFlushInterval = time.Minute

// Store persists usage counters keyed by profile name.
type Store interface {
	// Load returns the stored counters for every known profile. Profiles
	// without a row are absent from the map.
	Load(ctx context.Context) (map[string]backend.Usage, error)

	// Save stores the absolute counter values of each profile, replacing
	// previous values.
	Save(ctx context.Context, totals map[string]backend.Usage) error
}

// Profiles lists the profiles whose counters are persisted. *backend.Set
// implements it.
type Profiles interface {
	All() []*backend.Profile
}

// Flusher writes profile counters to a [Store] periodically and on shutdown.
type Flusher struct {
	store    Store
	profiles Profiles
	interval time.Duration

	last map[string]backend.Usage
}

// NewFlusher creates a flusher.
func NewFlusher(store Store, profiles Profiles, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{store: store, profiles: profiles, interval: interval}
}

// Restore seeds every profile with its stored counters. Call it once before
// [Flusher.Run].
func (f *Flusher) Restore(ctx context.Context) error {
	stored, err := f.store.Load(ctx)
	if err != nil {
		return err
	}
	for _, p := range f.profiles.All() {
		if u, ok := stored[p.Name]; ok {
			p.SeedUsage(u)
		}
	}
	f.last = stored
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more with
// a detached context. It always returns nil; flush failures are logged and
// retried on the next tick.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := f.Flush(fctx); err != nil {
				slog.Warn("usage: final flush failed", "err", err)
			}
			cancel()
			return nil
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				slog.Warn("usage: flush failed", "err", err)
			}
		}
	}
}

// Flush saves the current counters when any changed since the last
// successful flush.
func (f *Flusher) Flush(ctx context.Context) error {
	current := make(map[string]backend.Usage)
	changed := false
	for _, p := range f.profiles.All() {
		u := p.Usage()
		current[p.Name] = u
		if prev, ok := f.last[p.Name]; !ok || prev != u {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := f.store.Save(ctx, current); err != nil {
		return err
	}
	f.last = current
	slog.Debug("usage: flushed", "profiles", len(current))
	return nil
}
