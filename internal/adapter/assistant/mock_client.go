package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

// MockClient simulates the assistant platform in memory. Each run reports
// queued, then in_progress, then completed on successive polls, and the
// completion appends an assistant reply carrying a labeled draft.
type MockClient struct {
	mu      sync.Mutex
	threads map[string]*mockThread
	runs    map[string]*mockRun
	sleep   func(ctx context.Context, d time.Duration) error
}

type mockThread struct {
	messages []domain.Message
}

type mockRun struct {
	threadID string
	polls    int
	status   domain.RunStatus
}

// NewMockClient creates a new mock assistant client.
func NewMockClient() *MockClient {
	return &MockClient{
		threads: make(map[string]*mockThread),
		runs:    make(map[string]*mockRun),
		sleep:   retry.Sleep,
	}
}

// Ensure MockClient implements AssistantClient interface.
var _ AssistantClient = (*MockClient)(nil)

// CreateThread returns a fresh mock thread id.
func (m *MockClient) CreateThread(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "thread_mock_" + uuid.New().String()[:8]

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[id] = &mockThread{}
	return id, nil
}

// AppendUserMessage stores the user message on the mock thread.
func (m *MockClient) AppendUserMessage(ctx context.Context, threadID, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	th, ok := m.threads[threadID]
	if !ok {
		return "", &domain.PermanentError{Op: "append_message", StatusCode: 404, Err: fmt.Errorf("no thread found with id '%s'", threadID)}
	}
	msg := domain.Message{
		ID:        "msg_mock_" + uuid.New().String()[:8],
		ThreadID:  threadID,
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	th.messages = append(th.messages, msg)
	return msg.ID, nil
}

// CreateRun queues a mock run.
func (m *MockClient) CreateRun(ctx context.Context, threadID string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		return nil, &domain.PermanentError{Op: "create_run", StatusCode: 404, Err: fmt.Errorf("no thread found with id '%s'", threadID)}
	}
	id := "run_mock_" + uuid.New().String()[:8]
	m.runs[id] = &mockRun{threadID: threadID, status: domain.RunStatusQueued}
	return &domain.Run{ID: id, ThreadID: threadID, Status: domain.RunStatusQueued}, nil
}

// GetRun advances the mock run by one step and returns its status.
func (m *MockClient) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok || run.threadID != threadID {
		return nil, &domain.PermanentError{Op: "get_run", StatusCode: 404, Err: fmt.Errorf("no run found with id '%s'", runID)}
	}

	if !run.status.IsTerminal() {
		run.polls++
		switch {
		case run.polls == 1:
			run.status = domain.RunStatusQueued
		case run.polls == 2:
			run.status = domain.RunStatusInProgress
		default:
			run.status = domain.RunStatusCompleted
			m.appendReplyLocked(threadID)
		}
	}
	return &domain.Run{ID: runID, ThreadID: threadID, Status: run.status}, nil
}

// WaitForRun polls the mock run until completion.
func (m *MockClient) WaitForRun(ctx context.Context, threadID, runID string, maxAttempts int, delay time.Duration) (*domain.Run, error) {
	getRun := func(ctx context.Context) (*domain.Run, error) {
		return m.GetRun(ctx, threadID, runID)
	}
	return waitForRun(ctx, getRun, m.sleep, threadID, runID, maxAttempts, delay)
}

// GetMessages returns a copy of the mock thread, oldest first.
func (m *MockClient) GetMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	th, ok := m.threads[threadID]
	if !ok {
		return nil, &domain.PermanentError{Op: "list_messages", StatusCode: 404, Err: fmt.Errorf("no thread found with id '%s'", threadID)}
	}
	out := make([]domain.Message, len(th.messages))
	copy(out, th.messages)
	return out, nil
}

func (m *MockClient) appendReplyLocked(threadID string) {
	th := m.threads[threadID]
	var lastUser string
	for i := len(th.messages) - 1; i >= 0; i-- {
		if th.messages[i].Role == domain.RoleUser {
			lastUser = th.messages[i].Content
			break
		}
	}
	th.messages = append(th.messages, domain.Message{
		ID:        "msg_mock_" + uuid.New().String()[:8],
		ThreadID:  threadID,
		Role:      domain.RoleAssistant,
		Content:   mockReply(lastUser),
		CreatedAt: time.Now().UTC(),
	})
}

func mockReply(userText string) string {
	text := strings.TrimSpace(userText)
	lower := strings.ToLower(text)

	service, price := "Conseil", "150.00"
	switch {
	case strings.Contains(lower, "logo"):
		service, price = "Logo Design", "250.00"
	case strings.Contains(lower, "site") || strings.Contains(lower, "web"):
		service, price = "Site web", "1200.00"
	case strings.Contains(lower, "traduction") || strings.Contains(lower, "translation"):
		service, price = "Traduction", "80.00"
	}

	return fmt.Sprintf("Voici une proposition pour votre demande.\nService: %s\nDescription: %s\nPrix: %s€", service, text, price)
}
