package domain

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single caller-supplied chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LastMessage returns the final message of msgs. Earlier messages are never
// forwarded to the assistant service.
func LastMessage(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// ChatRequest is the decoded body of an inbound chat call.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// ChatResponse is the success body of a chat call.
type ChatResponse struct {
	Content string `json:"content"`
}

// ErrorResponse is the failure body of a chat call. Details is omitted for
// configuration errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
