// Package sink delivers accepted narration lines to their audience.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Line is one accepted narration line.
type Line struct {
	TurnID  string
	Persona string
	Text    string
	Model   string
	At      time.Time
}

// Sink receives narration lines. Implementations must be safe for concurrent
// use; personas deliver from their own goroutines.
type Sink interface {
	Deliver(ctx context.Context, line Line) error
}

// Log writes every line to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a sink writing to logger, or to slog.Default when logger
// is nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Deliver logs line at info level.
func (l *Log) Deliver(ctx context.Context, line Line) error {
	l.logger.InfoContext(ctx, "narration: line",
		"persona", line.Persona,
		"text", line.Text,
		"model", line.Model,
		"turn_id", line.TurnID,
	)
	return nil
}

// Multi fans a line out to several sinks.
type Multi []Sink

// Deliver passes line to every sink, even when an earlier one fails, and
// joins the errors.
func (m Multi) Deliver(ctx context.Context, line Line) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*Log)(nil)
	_ Sink = Multi(nil)
)
