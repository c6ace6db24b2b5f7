package persona

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/narrator/internal/narration"
)

// GuardedStore wraps a narration.StateStore and makes its failures
// non-fatal. A failed save keeps the state in memory and a failed load falls
// back to it, so narration continues while the backing store is down.
// [GuardedStore.IsDegraded] reports whether the most recent store operation
// failed.
//
// All methods are safe for concurrent use.
type GuardedStore struct {
	store    narration.StateStore
	degraded atomic.Bool

	mu       sync.Mutex
	fallback map[string]narration.State
}

// NewGuardedStore wraps store. A nil store keeps state in memory only.
func NewGuardedStore(store narration.StateStore) *GuardedStore {
	return &GuardedStore{store: store, fallback: make(map[string]narration.State)}
}

// LoadState returns the persisted state of persona. It never fails.
func (g *GuardedStore) LoadState(ctx context.Context, persona string) (narration.State, bool, error) {
	if g.store != nil {
		st, ok, err := g.store.LoadState(ctx, persona)
		if err == nil {
			g.degraded.Store(false)
			return st, ok, nil
		}
		g.degraded.Store(true)
		slog.Warn("persona: state load failed, using in-memory copy", "persona", persona, "err", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.fallback[persona]
	return st, ok, nil
}

// SaveState persists st. It never fails; the in-memory copy is always
// updated.
func (g *GuardedStore) SaveState(ctx context.Context, persona string, st narration.State) error {
	g.mu.Lock()
	g.fallback[persona] = st
	g.mu.Unlock()

	if g.store == nil {
		return nil
	}
	if err := g.store.SaveState(ctx, persona, st); err != nil {
		g.degraded.Store(true)
		slog.Warn("persona: state save failed, kept in memory", "persona", persona, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the most recent store operation failed.
func (g *GuardedStore) IsDegraded() bool { return g.degraded.Load() }

var _ narration.StateStore = (*GuardedStore)(nil)
