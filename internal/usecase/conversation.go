package usecase

import (
	"context"

	"finadvisor/internal/domain"
)

// ConversationSession opens threads and posts caller messages into them.
type ConversationSession struct {
	svc domain.AssistantService
}

// NewConversationSession creates a ConversationSession.
func NewConversationSession(svc domain.AssistantService) *ConversationSession {
	return &ConversationSession{svc: svc}
}

// Open creates a fresh, empty thread.
func (c *ConversationSession) Open(ctx context.Context) (*domain.Thread, error) {
	th, err := c.svc.CreateThread(ctx)
	if err != nil {
		return nil, domain.WrapOp("ConversationSession.Open", err)
	}
	return th, nil
}

// PostMessage appends one user message with content to the thread.
func (c *ConversationSession) PostMessage(ctx context.Context, threadID, content string) error {
	err := c.svc.CreateMessage(ctx, threadID, domain.Message{Role: domain.RoleUser, Content: content})
	return domain.WrapOp("ConversationSession.PostMessage", err)
}
