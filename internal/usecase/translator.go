package usecase

import "finadvisor/internal/domain"

// FallbackReply is returned when the assistant's reply has no text value.
const FallbackReply = "I'm sorry, I couldn't process your request in the expected format."

// Extract renders a reply content part as caller-facing text.
func Extract(c domain.Content) string {
	if t, ok := c.(*domain.TextContent); ok && t != nil {
		return t.Value
	}
	return FallbackReply
}
