package types

import "time"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the wire shape sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteOptions override per-call sampling parameters.
type CompleteOptions struct {
	MaxTokens   int64
	Temperature float64
}

// DialogMessage is one turn stored in a session's history and in the flat
// agent_messages log. IssueID links the message to the event or topic it
// belongs to.
type DialogMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	IssueID   string    `json:"issue_id"`
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Chat converts a history slice to the LLM wire shape.
func Chat(history []DialogMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
