// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local chat-completion API (OpenAI, an
// OpenAI-compatible gateway, Anthropic, Ollama, ...) and exposes the single
// request/response shape the narration engine needs. The model is chosen per
// request so that one provider instance can serve both the primary and the
// secondary model of a backend profile.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// ResponseFormatJSONObject asks the backend to constrain its reply to a single
// JSON object. Providers that cannot honour it ignore the hint.
const ResponseFormatJSONObject = "json_object"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Model overrides the provider's default model for this request. Empty means
	// use the model the provider was constructed with.
	Model string

	// Messages is the ordered conversation. The narration engine always sends
	// exactly one "system" and one "user" message.
	Messages []Message

	// ResponseFormat is either "" (free text) or ResponseFormatJSONObject.
	ResponseFormat string

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// FrequencyPenalty and PresencePenalty are forwarded verbatim to backends
	// that support them (see Capabilities). Zero leaves the provider default.
	FrequencyPenalty float64
	PresencePenalty  float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Model is the model id that actually served the request, as reported by
	// the backend. May be empty.
	Model string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails, if the backend returned no choice,
	// or if ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing which optional request
	// fields this provider forwards to its backend.
	Capabilities() Capabilities
}
