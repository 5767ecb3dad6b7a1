package service

import (
	"sync"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/airtable"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/assistant"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/notifier"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/interpreter"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/policy"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/repository"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/session"
)

// Pusher delivers progress messages to the live connections of a conversation.
type Pusher interface {
	PushToConversation(conversationID string, v interface{}) error
}

type Service struct {
	store        repository.Store
	sessions     session.Store
	assistant    assistant.AssistantClient
	interpreter  interpreter.Interpreter
	records      airtable.RecordStore
	notifier     notifier.Notifier
	config       *config.Config
	policyEngine *policy.Engine
	metrics      *metrics.Metrics
	pusher       Pusher

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates the coordinator. sessions may be nil, in which case bindings
// live in store.
func New(
	store repository.Store,
	sessions session.Store,
	assistantClient assistant.AssistantClient,
	interp interpreter.Interpreter,
	records airtable.RecordStore,
	notif notifier.Notifier,
	cfg *config.Config,
	policyEngine *policy.Engine,
	m *metrics.Metrics,
) *Service {
	if sessions == nil {
		sessions = store
	}
	return &Service{
		store:        store,
		sessions:     sessions,
		assistant:    assistantClient,
		interpreter:  interp,
		records:      records,
		notifier:     notif,
		config:       cfg,
		policyEngine: policyEngine,
		metrics:      m,
		busy:         make(map[string]struct{}),
	}
}

// SetPusher sets the destination of progress messages.
func (s *Service) SetPusher(p Pusher) {
	s.pusher = p
}

// tryAcquire marks the conversation busy. It returns false when a turn is
// already in flight for it.
func (s *Service) tryAcquire(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[conversationID]; ok {
		return false
	}
	s.busy[conversationID] = struct{}{}
	return true
}

func (s *Service) release(conversationID string) {
	s.mu.Lock()
	delete(s.busy, conversationID)
	s.mu.Unlock()
}
