// Package assistant provides clients for the hosted assistant platform
// (threads, messages and runs).
package assistant

import (
	"context"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

const (
	// DefaultPollAttempts is the polling budget used when none is given.
	DefaultPollAttempts = 30
	// DefaultPollDelay is the wait between two polls when none is given.
	DefaultPollDelay = time.Second
)

// AssistantClient defines the operations the orchestrator needs from the
// assistant platform.
type AssistantClient interface {
	// CreateThread opens a new remote thread and returns its id.
	CreateThread(ctx context.Context) (string, error)

	// AppendUserMessage adds a user message to the thread and returns its id.
	AppendUserMessage(ctx context.Context, threadID, text string) (string, error)

	// CreateRun starts the configured assistant on the thread.
	CreateRun(ctx context.Context, threadID string) (*domain.Run, error)

	// GetRun fetches the current state of a run.
	GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error)

	// WaitForRun polls the run until it reaches a terminal status or the
	// attempt budget is spent.
	WaitForRun(ctx context.Context, threadID, runID string, maxAttempts int, delay time.Duration) (*domain.Run, error)

	// GetMessages returns the thread's messages, oldest first.
	GetMessages(ctx context.Context, threadID string) ([]domain.Message, error)
}

// Ensure Client implements AssistantClient interface.
var _ AssistantClient = (*Client)(nil)
