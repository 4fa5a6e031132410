package domain

// Role is the author of a chat message.
type Role string

// Chat roles accepted from the UI.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation tail sent by the UI.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastUserMessage returns the content of the most recent user message.
func LastUserMessage(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
