package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/internal/narration"
)

// condenseTimeout bounds the history condensation triggered by a lowered
// history threshold.
const condenseTimeout = time.Minute

// Reload applies the hot-reloadable differences between the running config
// and next: persona additions, removals and setting changes, the active
// backend, the log level, the report toggles and the history threshold.
// Other changes are logged and need a restart.
//
// Sessions whose history exceeds a changed threshold are condensed before
// Reload returns.
func (a *App) Reload(next *config.Config) {
	for _, s := range a.reload(next) {
		ctx, cancel := context.WithTimeout(context.Background(), condenseTimeout)
		err := a.controller.Condense(ctx, s)
		cancel()
		switch {
		case errors.Is(err, narration.ErrTurnInProgress):
			slog.Debug("app: reload: turn running, condensation left to it", "persona", s.Name())
		case err != nil:
			slog.Warn("app: reload: history condensation failed", "persona", s.Name(), "err", err)
		}
	}
}

// reload applies next under the lock and returns the sessions that need
// condensing.
func (a *App) reload(next *config.Config) []*narration.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(a.cfg, next)

	if d.ActiveBackendChanged {
		if err := a.profiles.Activate(d.NewActiveBackend); err != nil {
			slog.Error("app: reload: cannot activate backend", "backend", d.NewActiveBackend, "err", err)
		} else {
			slog.Info("app: reload: active backend changed", "backend", d.NewActiveBackend)
		}
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(levelOf(d.NewLogLevel))
		slog.Info("app: reload: log level changed", "level", d.NewLogLevel)
	}

	if d.ReportsChanged {
		a.keeper.SetReports(reportsOf(next.Reports))
		slog.Info("app: reload: report toggles changed")
	}

	// The session options of new personas read the narration settings.
	prev := a.cfg
	a.cfg = next
	if d.PersonasChanged {
		a.applyPersonaChanges(next, d.PersonaChanges)
	}

	if prev.Server.ListenAddr != next.Server.ListenAddr || prev.Storage != next.Storage {
		slog.Warn("app: reload: listen address or storage changed; restart to apply")
	}

	if !d.HistoryThresholdChanged {
		return nil
	}
	slog.Info("app: reload: history threshold changed", "threshold", d.NewHistoryThreshold)
	var over []*narration.Session
	for _, e := range a.registry.All() {
		e.Session.SetHistoryThreshold(d.NewHistoryThreshold)
		if e.Session.NeedsCondense() {
			over = append(over, e.Session)
		}
	}
	return over
}

func (a *App) applyPersonaChanges(next *config.Config, changes []config.PersonaDiff) {
	byName := make(map[string]config.PersonaConfig, len(next.Personas))
	for _, pc := range next.Personas {
		byName[pc.Name] = pc
	}

	for _, pd := range changes {
		switch {
		case pd.Removed:
			a.registry.Remove(pd.Name)
			slog.Info("app: reload: persona removed", "persona", pd.Name)
		case pd.Added:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.addPersona(ctx, byName[pd.Name])
			cancel()
			if err != nil {
				slog.Error("app: reload: cannot add persona", "persona", pd.Name, "err", err)
				continue
			}
			slog.Info("app: reload: persona added", "persona", pd.Name)
		default:
			if err := a.registry.Update(specOf(byName[pd.Name])); err != nil {
				slog.Error("app: reload: cannot update persona", "persona", pd.Name, "err", err)
				continue
			}
			slog.Info("app: reload: persona updated", "persona", pd.Name, "disabled", pd.Disabled)
		}
	}
}
