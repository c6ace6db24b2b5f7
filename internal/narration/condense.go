package narration

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/pkg/provider/llm"
)

const (
	condenseSystemPrompt = "You are an adversarial system that cleans up a history list, aiming to remove repetition and keep the narration fresh for the following persona: "
	condenseUserPrompt   = "Summarize the following events into one concise sentence, focusing on outliers to reduce fixation on the most prominent themes: "
)

// Condense asks the secondary model to summarise the session's history and
// installs the comma-separated result. An empty history is left alone. If
// the reply yields no entries the current history is kept and an error is
// returned. It returns [ErrTurnInProgress] while a turn runs on s.
func (c *Controller) Condense(ctx context.Context, s *Session) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}
	defer s.busy.Store(false)

	hist := s.History()
	if len(hist) == 0 {
		return nil
	}
	_, err := c.condense(ctx, s, s.Persona(), hist)
	return err
}

func (c *Controller) condense(ctx context.Context, s *Session, p Persona, hist []string) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanCondense, trace.WithAttributes(
		observe.AttrPersona.String(p.Name),
	))
	defer span.End()

	model, profile := s.selector.ResolveSecondary()
	if model == "" {
		return nil, ErrNoBackend
	}
	req := llm.CompletionRequest{
		Model: model,
		Messages: []llm.Message{
			llm.SystemMessage(condenseSystemPrompt + p.Personality),
			llm.UserMessage(condenseUserPrompt + strings.Join(hist, "\n ")),
		},
		Temperature: c.temperature,
	}
	content, err := c.complete(ctx, profile, req)
	if err != nil {
		c.metrics.RecordCondensation(ctx, "error")
		return nil, fmt.Errorf("narration: condense: %w", err)
	}
	entries := SplitCondensed(content)
	if len(entries) == 0 {
		c.metrics.RecordCondensation(ctx, "empty")
		return nil, fmt.Errorf("narration: condense: %w", ErrEmptyResponse)
	}
	s.replaceHistory(entries)
	c.metrics.RecordCondensation(ctx, "ok")
	observe.Logger(ctx).Info("narration: history condensed",
		"persona", p.Name,
		"model", model,
		"before", len(hist),
		"after", len(entries),
	)
	return entries, nil
}
