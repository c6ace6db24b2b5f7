package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/narrator/internal/narration"
	"github.com/MrWong99/narrator/internal/persona"
	"github.com/MrWong99/narrator/internal/sink"
)

// loop runs a round whenever the debouncer fires and on every tick, until
// ctx is done.
func (a *App) loop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.trigger:
		case <-ticker.C:
		}
		if err := a.Round(ctx); err != nil {
			return err
		}
	}
}

// Round runs one turn for every enabled persona that is due and has pending
// observations. Turns of different personas run concurrently; Round returns
// once all of them finished. Only context cancellation is returned as an
// error; turn failures are logged.
func (a *App) Round(ctx context.Context) error {
	now := a.now()
	var due []*persona.Entry
	for _, e := range a.registry.Active() {
		if e.Buffer.Len() > 0 && e.Due(now) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range due {
		g.Go(func() error { return a.turn(gctx, e, now) })
	}
	return g.Wait()
}

// turn runs one persona turn and delivers an accepted line.
func (a *App) turn(ctx context.Context, e *persona.Entry, now time.Time) error {
	e.MarkTurn(now)
	obs := e.Buffer.Drain()
	if len(obs) == 0 {
		return nil
	}

	res, ok, err := a.controller.Evaluate(ctx, e.Session, obs)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, narration.ErrTurnInProgress):
		slog.Debug("app: turn skipped, previous turn still running", "persona", e.Name())
		return nil
	default:
		slog.Error("app: turn failed", "persona", e.Name(), "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	line := sink.Line{
		TurnID:  res.TurnID,
		Persona: res.Persona,
		Text:    res.Text,
		Model:   res.Model,
		At:      a.now(),
	}
	if len(a.sinks) == 0 {
		slog.Debug("app: line", "persona", line.Persona, "text", line.Text)
		return nil
	}
	if err := a.sinks.Deliver(ctx, line); err != nil {
		slog.Warn("app: sink delivery failed", "persona", line.Persona, "err", err)
	}
	return nil
}
