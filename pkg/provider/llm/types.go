package llm

// Roles used by the narration engine.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// SystemMessage returns a "system" role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage returns a "user" role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// Capabilities describes which optional request fields a provider honours.
type Capabilities struct {
	// SupportsPenalties indicates FrequencyPenalty and PresencePenalty reach
	// the backend.
	SupportsPenalties bool

	// SupportsResponseFormat indicates the json_object response format hint
	// reaches the backend.
	SupportsResponseFormat bool
}

// CharCount returns the total number of characters (bytes) across all message
// contents. Used for usage accounting.
func CharCount(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}
