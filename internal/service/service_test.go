package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/airtable"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/assistant"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/interpreter"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/policy"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/protocol"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/repository"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/session"
	"github.com/workmusicalflow/FreelanceFlow-v1/tests/helpers"
)

// scriptedAssistant answers every call from fixed fields.
type scriptedAssistant struct {
	mu sync.Mutex

	threadErr error
	appendErr error
	runErr    error
	waitErr   error
	final     domain.RunStatus
	lastError *domain.RunError
	messages  []domain.Message

	// block, when set, holds the next WaitForRun until closed or cancelled.
	block   chan struct{}
	entered chan struct{}

	threads   int
	appended  []string
	runs      int
	waitCalls []string
}

func (a *scriptedAssistant) CreateThread(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.threadErr != nil {
		return "", a.threadErr
	}
	a.threads++
	return fmt.Sprintf("thread_%d", a.threads), nil
}

func (a *scriptedAssistant) AppendUserMessage(ctx context.Context, threadID, text string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.appendErr != nil {
		return "", a.appendErr
	}
	a.appended = append(a.appended, text)
	return fmt.Sprintf("msg_%d", len(a.appended)), nil
}

func (a *scriptedAssistant) CreateRun(ctx context.Context, threadID string) (*domain.Run, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runErr != nil {
		return nil, a.runErr
	}
	a.runs++
	return &domain.Run{ID: fmt.Sprintf("run_%d", a.runs), ThreadID: threadID, Status: domain.RunStatusQueued}, nil
}

func (a *scriptedAssistant) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	return &domain.Run{ID: runID, ThreadID: threadID, Status: a.final}, nil
}

func (a *scriptedAssistant) WaitForRun(ctx context.Context, threadID, runID string, maxAttempts int, delay time.Duration) (*domain.Run, error) {
	a.mu.Lock()
	a.waitCalls = append(a.waitCalls, runID)
	block, entered := a.block, a.entered
	a.block, a.entered = nil, nil
	a.mu.Unlock()

	if block != nil {
		if entered != nil {
			close(entered)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.waitErr != nil {
		return nil, a.waitErr
	}
	return &domain.Run{ID: runID, ThreadID: threadID, Status: a.final, LastError: a.lastError}, nil
}

func (a *scriptedAssistant) GetMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Message, len(a.messages))
	copy(out, a.messages)
	return out, nil
}

type countingRecords struct {
	airtable.RecordStore
	mu      sync.Mutex
	creates int
	err     error
}

func (r *countingRecords) CreateRecord(ctx context.Context, fields map[string]interface{}) (*domain.Record, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.RecordStore.CreateRecord(ctx, fields)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *fakeNotifier) SendConfirmation(ctx context.Context, mission domain.Mission, recordID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recordID)
	return n.err
}

func (n *fakeNotifier) Name() string { return "fake" }
func (n *fakeNotifier) Close() error { return nil }

type fakePusher struct {
	mu   sync.Mutex
	msgs []interface{}
}

func (p *fakePusher) PushToConversation(conversationID string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, v)
	return nil
}

func (p *fakePusher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		switch msg := m.(type) {
		case protocol.RunStartedMessage:
			out = append(out, msg.Type)
		case protocol.RunStatusMessage:
			out = append(out, msg.Type)
		case protocol.ReplyMessage:
			out = append(out, msg.Type)
		case protocol.ConfirmedMessage:
			out = append(out, msg.Type)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	db       *repository.SQLiteStore
	records  *countingRecords
	notifier *fakeNotifier
	pusher   *fakePusher
}

func newFixture(t *testing.T, client assistant.AssistantClient, sessions session.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	db := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	cfg := &config.Config{
		RunPollAttempts:      5,
		RunPollInterval:      0,
		TurnTimeout:          5 * time.Second,
		ReviewPriceThreshold: 1000,
	}

	f := &fixture{
		db:       db,
		records:  &countingRecords{RecordStore: airtable.NewMockClient()},
		notifier: &fakeNotifier{},
		pusher:   &fakePusher{},
	}
	f.svc = New(db, sessions, client, interpreter.NewLabelInterpreter(), f.records, f.notifier, cfg, engine, metrics.New())
	f.svc.SetPusher(f.pusher)
	return f
}

func eventTypes(t *testing.T, f *fixture, convID string) []domain.EventType {
	t.Helper()
	events, err := f.svc.GetConversationEvents(context.Background(), convID, 0, nil, 0)
	if err != nil {
		t.Fatalf("GetConversationEvents failed: %v", err)
	}
	var out []domain.EventType
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestSubmitTurnWithMockAssistant(t *testing.T) {
	f := newFixture(t, assistant.NewMockClient(), nil)
	ctx := context.Background()

	res := f.svc.SubmitTurn(ctx, "conv_mock", domain.SubmitTurnRequest{Text: "J'ai besoin d'un logo"})

	require.Equal(t, domain.TurnOutcomeReplied, res.Status)
	require.NotNil(t, res.Draft)
	assert.Equal(t, "Logo Design", res.Draft.Service)
	assert.Equal(t, "J'ai besoin d'un logo", res.Draft.Description)
	assert.Equal(t, 250.0, res.Draft.Price)
	assert.Contains(t, res.Reply, "Prix: 250.00€")

	assert.Equal(t, []domain.EventType{
		domain.EventTypeTurnStarted,
		domain.EventTypeMessageAppended,
		domain.EventTypeRunCreated,
		domain.EventTypeRunPolled,
		domain.EventTypeRunPolled,
		domain.EventTypeRunPolled,
		domain.EventTypeRunTerminal,
		domain.EventTypeDraftExtracted,
	}, eventTypes(t, f, "conv_mock"))

	assert.Equal(t, []string{
		protocol.TypeRunStarted,
		protocol.TypeRunStatus,
		protocol.TypeRunStatus,
		protocol.TypeRunStatus,
		protocol.TypeReply,
	}, f.pusher.types())

	turns, err := f.svc.ListTurns(ctx, "conv_mock", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, res.TurnID, turns[0].TurnID)
	assert.Equal(t, domain.RunStatusCompleted, turns[0].RunStatus)
	assert.Equal(t, domain.TurnOutcomeReplied, turns[0].Outcome)
	assert.NotNil(t, turns[0].Draft)
	assert.NotNil(t, turns[0].CompletedAt)
}

func TestSubmitTurnReusesThread(t *testing.T) {
	a := &scriptedAssistant{final: domain.RunStatusCompleted}
	f := newFixture(t, a, nil)
	ctx := context.Background()

	f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "bonjour"})
	f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "encore"})

	assert.Equal(t, 1, a.threads)
	assert.Equal(t, []string{"bonjour", "encore"}, a.appended)
}

func TestSubmitTurnBlankTextMakesNoRemoteCall(t *testing.T) {
	a := &scriptedAssistant{final: domain.RunStatusCompleted}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "  \n\t"})

	assert.Equal(t, domain.TurnOutcomeEmpty, res.Status)
	assert.Equal(t, msgEmptyInput, res.Reply)
	assert.Nil(t, res.Draft)
	assert.Zero(t, a.threads)
	assert.Empty(t, a.appended)
}

func TestSubmitTurnGeneratesConversationID(t *testing.T) {
	a := &scriptedAssistant{final: domain.RunStatusCompleted}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "", domain.SubmitTurnRequest{Text: "bonjour"})
	assert.Regexp(t, `^conv_[0-9a-f]{8}$`, res.ConversationID)
}

func TestSubmitTurnUsesLatestAssistantMessage(t *testing.T) {
	a := &scriptedAssistant{
		final: domain.RunStatusCompleted,
		messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "un logo"},
			{ID: "m2", Role: domain.RoleAssistant, Content: "Service: Logo\nDescription: logo\nPrix: 100€"},
			{ID: "m3", Role: domain.RoleUser, Content: "finalement non"},
			{ID: "m4", Role: domain.RoleAssistant, Content: "Très bien, pas de mission."},
		},
	}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "finalement non"})

	assert.Equal(t, domain.TurnOutcomeReplied, res.Status)
	assert.Equal(t, "Très bien, pas de mission.", res.Reply)
	assert.Nil(t, res.Draft)
}

func TestSubmitTurnWithoutAssistantMessage(t *testing.T) {
	a := &scriptedAssistant{
		final:    domain.RunStatusCompleted,
		messages: []domain.Message{{ID: "m1", Role: domain.RoleUser, Content: "allo"}},
	}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "allo"})
	assert.Equal(t, msgNoAssistantReply, res.Reply)
	assert.Nil(t, res.Draft)
}

func TestSubmitTurnFailedRunReportsLastError(t *testing.T) {
	a := &scriptedAssistant{
		final:     domain.RunStatusFailed,
		lastError: &domain.RunError{Code: "server_error", Message: "quota dépassé"},
	}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "bonjour"})

	assert.Equal(t, domain.TurnOutcomeRunFailed, res.Status)
	assert.Contains(t, res.Reply, "quota dépassé")
	assert.Nil(t, res.Draft)
	assert.Contains(t, eventTypes(t, f, "conv_1"), domain.EventTypeTurnFailed)
}

func TestSubmitTurnExpiredRunIsDistinct(t *testing.T) {
	a := &scriptedAssistant{final: domain.RunStatusExpired}
	f := newFixture(t, a, nil)

	res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "bonjour"})
	assert.Equal(t, domain.TurnOutcomeRunFailed, res.Status)
	assert.Equal(t, "La réponse de l'assistant a expiré.", res.Reply)
}

func TestSubmitTurnFailureMapping(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(a *scriptedAssistant)
		outcome domain.TurnOutcome
		reply   string
	}{
		{
			name: "run timeout",
			setup: func(a *scriptedAssistant) {
				a.waitErr = &domain.RunTimeoutError{RunID: "run_1", Attempts: 5, LastStatus: domain.RunStatusInProgress}
			},
			outcome: domain.TurnOutcomeTimeout,
			reply:   msgTimeout,
		},
		{
			name: "remote unavailable",
			setup: func(a *scriptedAssistant) {
				a.appendErr = &domain.RetryExhaustedError{Attempts: 3, Last: &domain.TransientError{Op: "append_message", StatusCode: 503}}
			},
			outcome: domain.TurnOutcomeError,
			reply:   msgUnavailable,
		},
		{
			name: "missing assistant id",
			setup: func(a *scriptedAssistant) {
				a.runErr = &domain.ConfigError{Keys: []string{"OPENAI_ASSISTANT_ID"}}
			},
			outcome: domain.TurnOutcomeError,
			reply:   msgNotConfigured,
		},
		{
			name: "permanent failure",
			setup: func(a *scriptedAssistant) {
				a.runErr = &domain.PermanentError{Op: "create_run", StatusCode: 400, Err: errors.New("bad request")}
			},
			outcome: domain.TurnOutcomeError,
			reply:   msgRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &scriptedAssistant{final: domain.RunStatusCompleted}
			tt.setup(a)
			f := newFixture(t, a, nil)

			res := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "bonjour"})
			assert.Equal(t, tt.outcome, res.Status)
			assert.Equal(t, tt.reply, res.Reply)
			assert.Nil(t, res.Draft)
			assert.Contains(t, f.pusher.types(), protocol.TypeReply)
		})
	}
}

func TestSubmitTurnThreadCreationFailure(t *testing.T) {
	a := &scriptedAssistant{threadErr: &domain.ConfigError{Keys: []string{"OPENAI_API_KEY"}}}
	f := newFixture(t, a, nil)
	ctx := context.Background()

	res := f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "bonjour"})
	assert.Equal(t, domain.TurnOutcomeError, res.Status)
	assert.Equal(t, msgNotConfigured, res.Reply)

	conv, err := f.db.GetConversation(ctx, "conv_1")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestSubmitTurnConcurrentTurnIsBusy(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	a := &scriptedAssistant{final: domain.RunStatusCompleted, block: block, entered: entered}
	f := newFixture(t, a, nil)
	ctx := context.Background()

	done := make(chan *domain.TurnResult, 1)
	go func() {
		done <- f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "premier"})
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("first turn never reached the run wait")
	}

	busy := f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "second"})
	assert.Equal(t, domain.TurnOutcomeBusy, busy.Status)
	assert.Equal(t, msgBusy, busy.Reply)

	other := f.svc.SubmitTurn(ctx, "conv_2", domain.SubmitTurnRequest{Text: "autre"})
	assert.Equal(t, domain.TurnOutcomeReplied, other.Status)

	close(block)
	select {
	case res := <-done:
		assert.Equal(t, domain.TurnOutcomeReplied, res.Status)
	case <-time.After(time.Second):
		t.Fatalf("first turn did not finish")
	}
	assert.Equal(t, []string{"premier", "autre"}, a.appended)
}

func TestSubmitTurnWaitsForAbandonedRun(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	a := &scriptedAssistant{final: domain.RunStatusCompleted, block: block, entered: entered}
	f := newFixture(t, a, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *domain.TurnResult, 1)
	go func() {
		done <- f.svc.SubmitTurn(ctx, "conv_1", domain.SubmitTurnRequest{Text: "premier"})
	}()
	<-entered
	cancel()

	res := <-done
	assert.Equal(t, domain.TurnOutcomeError, res.Status)
	assert.Equal(t, msgCancelled, res.Reply)

	abandoned, err := f.db.GetTurn(context.Background(), res.TurnID)
	require.NoError(t, err)
	require.NotNil(t, abandoned)
	assert.Equal(t, "run_1", abandoned.RunID)
	assert.False(t, abandoned.RunStatus.IsTerminal())

	next := f.svc.SubmitTurn(context.Background(), "conv_1", domain.SubmitTurnRequest{Text: "second"})
	assert.Equal(t, domain.TurnOutcomeReplied, next.Status)
	assert.Equal(t, []string{"run_1", "run_1", "run_2"}, a.waitCalls)

	settled, err := f.db.GetTurn(context.Background(), res.TurnID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, settled.RunStatus)
}

func TestSubmitTurnMirrorsExternalSessionStore(t *testing.T) {
	sessions := session.NewMemoryStore()
	a := &scriptedAssistant{final: domain.RunStatusCompleted}
	f := newFixture(t, a, sessions)
	ctx := context.Background()

	res := f.svc.SubmitTurn(ctx, "conv_ext", domain.SubmitTurnRequest{Text: "bonjour"})
	require.Equal(t, domain.TurnOutcomeReplied, res.Status)

	bound, err := sessions.GetConversation(ctx, "conv_ext")
	require.NoError(t, err)
	require.NotNil(t, bound)

	local, err := f.db.GetConversation(ctx, "conv_ext")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, bound.ThreadID, local.ThreadID)

	turns, err := f.svc.ListTurns(ctx, "conv_ext", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestBeginConversation(t *testing.T) {
	a := &scriptedAssistant{final: domain.RunStatusCompleted}
	f := newFixture(t, a, nil)
	ctx := context.Background()

	resp, err := f.svc.BeginConversation(ctx, domain.BeginConversationRequest{})
	require.NoError(t, err)
	assert.True(t, resp.ReadyForInput)
	assert.Regexp(t, `^conv_`, resp.ConversationID)

	again, err := f.svc.BeginConversation(ctx, domain.BeginConversationRequest{ConversationID: resp.ConversationID})
	require.NoError(t, err)
	assert.True(t, again.ReadyForInput)
	assert.Equal(t, 1, a.threads)
}

func TestBeginConversationRemoteFailure(t *testing.T) {
	a := &scriptedAssistant{threadErr: &domain.RetryExhaustedError{Attempts: 3, Last: errors.New("dial tcp: refused")}}
	f := newFixture(t, a, nil)

	resp, err := f.svc.BeginConversation(context.Background(), domain.BeginConversationRequest{ConversationID: "conv_x"})
	require.NoError(t, err)
	assert.False(t, resp.ReadyForInput)
	assert.Equal(t, "conv_x", resp.ConversationID)
	assert.Contains(t, resp.Message, msgUnavailable)
}
