// Package session maps conversation identities to remote assistant threads.
package session

import (
	"context"
	"sync"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Store holds conversation bindings. A binding never changes once written.
type Store interface {
	// GetConversation returns the binding, or nil when none exists.
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// BindConversation stores conv unless the conversation is already bound,
	// and returns the binding that is in effect afterwards.
	BindConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error)
}

// MemoryStore keeps bindings in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]domain.Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]domain.Conversation)}
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)

// GetConversation returns the binding for conversationID.
func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

// BindConversation stores conv if the conversation is unbound.
func (s *MemoryStore) BindConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.convs[conv.ConversationID]; ok {
		return &existing, nil
	}
	s.convs[conv.ConversationID] = *conv
	stored := *conv
	return &stored, nil
}
