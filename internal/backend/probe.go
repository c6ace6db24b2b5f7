package backend

import (
	"context"
	"fmt"

	"github.com/MrWong99/narrator/pkg/provider/llm"
)

const (
	probeSystemPrompt = "You are a creative poet. Reply with a two-line poem."
	probeUserPrompt   = "The player just configured an API key for the narrator. Greet them with a short reply."
)

// Probe sends a short creative prompt to p and returns the reply. It is used
// to verify that a profile's credentials and model work before narrating.
// model overrides the profile's primary model when non-empty. Usage counters
// are updated like for any other request.
func Probe(ctx context.Context, p *Profile, model string) (string, error) {
	if p == nil {
		return "", ErrNoActiveProfile
	}
	if model == "" {
		model = p.Model
	}
	if model == "" {
		return "", fmt.Errorf("backend: probe %q: no model configured", p.Name)
	}

	msgs := []llm.Message{
		llm.SystemMessage(probeSystemPrompt),
		llm.UserMessage(probeUserPrompt),
	}
	resp, err := p.LLM.Complete(ctx, llm.CompletionRequest{Model: model, Messages: msgs})
	p.AddSent(llm.CharCount(msgs))
	if err != nil {
		return "", fmt.Errorf("backend: probe %q: %w", p.Name, err)
	}
	p.AddReceived(len(resp.Content))
	return resp.Content, nil
}
