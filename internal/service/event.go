package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, conversationID, turnID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:        "evt_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		TurnID:         turnID,
		Ts:             time.Now().UnixMilli(),
		Type:           eventType,
		Payload:        payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// logEvent records an event and only logs a failure.
func (s *Service) logEvent(ctx context.Context, conversationID, turnID string, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, conversationID, turnID, eventType, payload); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}

// push sends a message to the conversation's live connections, if any.
func (s *Service) push(conversationID string, v interface{}) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.PushToConversation(conversationID, v); err != nil {
		log.Printf("WARN: failed to push to conversation %s: %v", conversationID, err)
	}
}

// GetConversationEvents returns the trail of a conversation.
func (s *Service) GetConversationEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, conversationID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation events: %w", err)
	}
	return events, nil
}
