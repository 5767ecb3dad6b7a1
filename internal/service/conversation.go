package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// NewConversationID returns a fresh conversation identity.
func NewConversationID() string {
	return "conv_" + uuid.New().String()[:8]
}

// BeginConversation opens the conversation, creating and binding its thread
// when it has none. Remote failures are reported through the response; the
// returned error is reserved for local storage failures.
func (s *Service) BeginConversation(ctx context.Context, req domain.BeginConversationRequest) (*domain.BeginConversationResponse, error) {
	convID := req.ConversationID
	if convID == "" {
		convID = NewConversationID()
	}

	existing, err := s.sessions.GetConversation(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if existing != nil {
		s.mirror(ctx, existing)
		return &domain.BeginConversationResponse{ConversationID: convID, ReadyForInput: true, Message: msgReady}, nil
	}

	if _, err := s.bindNewThread(ctx, convID); err != nil {
		log.Printf("ERROR: failed to begin conversation %s: %v", convID, err)
		_, text := classifyFailure(err)
		return &domain.BeginConversationResponse{
			ConversationID: convID,
			ReadyForInput:  false,
			Message:        msgBeginFailed + " " + text,
		}, nil
	}

	return &domain.BeginConversationResponse{ConversationID: convID, ReadyForInput: true, Message: msgReady}, nil
}

// resolveConversation returns the binding of convID, creating the thread on
// first use.
func (s *Service) resolveConversation(ctx context.Context, convID string) (*domain.Conversation, error) {
	conv, err := s.sessions.GetConversation(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv != nil {
		s.mirror(ctx, conv)
		return conv, nil
	}
	return s.bindNewThread(ctx, convID)
}

// bindNewThread creates a remote thread and binds it to convID. When another
// caller bound the conversation first, that binding wins.
func (s *Service) bindNewThread(ctx context.Context, convID string) (*domain.Conversation, error) {
	threadID, err := s.assistant.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	bound, err := s.sessions.BindConversation(ctx, &domain.Conversation{
		ConversationID: convID,
		ThreadID:       threadID,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind conversation: %w", err)
	}
	if bound.ThreadID != threadID {
		log.Printf("WARN: conversation %s already bound to %s, dropping thread %s", convID, bound.ThreadID, threadID)
	}
	s.mirror(ctx, bound)
	return bound, nil
}

// mirror copies a binding held by an external session store into the local
// store so that turns can reference it.
func (s *Service) mirror(ctx context.Context, conv *domain.Conversation) {
	if s.sessions == s.store {
		return
	}
	if _, err := s.store.BindConversation(ctx, conv); err != nil {
		log.Printf("ERROR: failed to mirror conversation %s: %v", conv.ConversationID, err)
	}
}

// ListTurns returns the latest turns of a conversation, oldest first.
func (s *Service) ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	turns, err := s.store.ListTurns(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	return turns, nil
}
