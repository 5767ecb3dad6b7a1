package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

const (
	serviceName  = "assistant"
	messagesPage = 100
)

// Client talks to the assistant platform through go-openai.
type Client struct {
	api         *openai.Client
	baseURL     string
	apiKey      string
	assistantID string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       *retry.Policy
	metrics     *metrics.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter throttles every request through l.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetryPolicy wraps every request in p.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithMetrics records remote call metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleeper replaces the wait used between polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a new assistant platform client.
func NewClient(baseURL, apiKey, assistantID string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		assistantID: assistantID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		sleep: retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.httpClient
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

// CreateThread opens a new thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}
	thread, err := call(ctx, c, "create_thread", func(ctx context.Context) (openai.Thread, error) {
		return c.api.CreateThread(ctx, openai.ThreadRequest{})
	})
	if err != nil {
		return "", err
	}
	if thread.ID == "" {
		return "", missingID("create_thread")
	}
	return thread.ID, nil
}

// AppendUserMessage adds a user message to the thread.
func (c *Client) AppendUserMessage(ctx context.Context, threadID, text string) (string, error) {
	if err := c.requireKey(); err != nil {
		return "", err
	}
	msg, err := call(ctx, c, "append_message", func(ctx context.Context) (openai.Message, error) {
		return c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
			Role:    string(domain.RoleUser),
			Content: text,
		})
	})
	if err != nil {
		return "", err
	}
	if msg.ID == "" {
		return "", missingID("append_message")
	}
	return msg.ID, nil
}

// CreateRun starts the configured assistant on the thread. When an attempt
// fails after the request may have reached the platform, the next attempt
// first adopts a run still active on the thread instead of starting another.
func (c *Client) CreateRun(ctx context.Context, threadID string) (*domain.Run, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.assistantID) == "" {
		return nil, &domain.ConfigError{Keys: []string{"OPENAI_ASSISTANT_ID"}}
	}

	var failed bool
	run, err := call(ctx, c, "create_run", func(ctx context.Context) (openai.Run, error) {
		if failed {
			if active, ok := c.activeRun(ctx, threadID); ok {
				log.Printf("WARN: adopting run %s on thread %s after a failed create", active.ID, threadID)
				return active, nil
			}
		}
		run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: c.assistantID})
		if err != nil {
			failed = true
		}
		return run, err
	})
	if err != nil {
		return nil, err
	}
	if run.ID == "" {
		return nil, missingID("create_run")
	}
	out := toRun(run, threadID)
	if out.Status == "" {
		out.Status = domain.RunStatusQueued
	}
	return out, nil
}

// activeRun returns the thread's newest run when it has not finished.
// Lookup failures are ignored; the caller creates a run instead.
func (c *Client) activeRun(ctx context.Context, threadID string) (openai.Run, bool) {
	limit, order := 1, "desc"
	list, err := c.api.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit, Order: &order})
	if err != nil || len(list.Runs) == 0 {
		return openai.Run{}, false
	}
	latest := list.Runs[0]
	if latest.ID == "" || domain.RunStatus(latest.Status).IsTerminal() {
		return openai.Run{}, false
	}
	return latest, true
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	run, err := call(ctx, c, "get_run", func(ctx context.Context) (openai.Run, error) {
		return c.api.RetrieveRun(ctx, threadID, runID)
	})
	if err != nil {
		return nil, err
	}
	if run.Status == "" {
		return nil, &domain.PermanentError{Op: "get_run", Err: errors.New("response has no status")}
	}
	c.metrics.IncRunPoll()
	out := toRun(run, threadID)
	out.ID = runID
	return out, nil
}

// WaitForRun polls the run until it reaches a terminal status. maxAttempts
// <= 0 uses DefaultPollAttempts. A zero delay polls back to back.
func (c *Client) WaitForRun(ctx context.Context, threadID, runID string, maxAttempts int, delay time.Duration) (*domain.Run, error) {
	getRun := func(ctx context.Context) (*domain.Run, error) {
		return c.GetRun(ctx, threadID, runID)
	}
	return waitForRun(ctx, getRun, c.sleep, threadID, runID, maxAttempts, delay)
}

// GetMessages returns the thread's messages, oldest first. The platform lists
// newest first, so the page is reversed.
func (c *Client) GetMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	limit, order := messagesPage, "desc"
	list, err := call(ctx, c, "list_messages", func(ctx context.Context) (openai.MessagesList, error) {
		return c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(list.Messages))
	for i := len(list.Messages) - 1; i >= 0; i-- {
		m := list.Messages[i]
		threadRef := m.ThreadID
		if threadRef == "" {
			threadRef = threadID
		}
		messages = append(messages, domain.Message{
			ID:        m.ID,
			ThreadID:  threadRef,
			Role:      domain.Role(m.Role),
			Content:   messageText(m.Content),
			CreatedAt: time.Unix(int64(m.CreatedAt), 0).UTC(),
		})
	}
	return messages, nil
}

// messageText concatenates the text blocks of a message with newlines.
func messageText(content []openai.MessageContent) string {
	var parts []string
	for _, block := range content {
		if block.Type != "text" || block.Text == nil {
			continue
		}
		parts = append(parts, block.Text.Value)
	}
	return strings.Join(parts, "\n")
}

func toRun(run openai.Run, threadID string) *domain.Run {
	out := &domain.Run{ID: run.ID, ThreadID: threadID, Status: domain.RunStatus(run.Status)}
	if run.LastError != nil {
		out.LastError = &domain.RunError{Code: string(run.LastError.Code), Message: run.LastError.Message}
	}
	return out
}

func (c *Client) requireKey() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return &domain.ConfigError{Keys: []string{"OPENAI_API_KEY"}}
	}
	return nil
}

// call performs one logical request under the client's retry policy. Every
// attempt waits for the rate limiter and is classified by classifyError.
func call[T any](ctx context.Context, c *Client, op string, do func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := c.wait(ctx, op); err != nil {
			return zero, err
		}
		start := time.Now()
		out, err := do(ctx)
		err = classifyError(ctx, op, err)
		c.metrics.ObserveRemoteCall(serviceName, op, start, err)
		if err != nil {
			return zero, err
		}
		return out, nil
	})
}

func (c *Client) wait(ctx context.Context, op string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.TransientError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}
	return nil
}

// classifyError maps a go-openai error to a transient or permanent error.
// Context errors are returned as they are.
func classifyError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.HTTPStatusCode, apiErr)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(op, reqErr.HTTPStatusCode, reqErr)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &domain.TransientError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	// Anything else is a response that could not be decoded.
	return &domain.PermanentError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
}

// classifyStatus maps a non-2xx response to a transient or permanent error.
func classifyStatus(op string, status int, err error) error {
	if isTransientStatus(status) {
		return &domain.TransientError{Op: op, StatusCode: status, Err: err}
	}
	return &domain.PermanentError{Op: op, StatusCode: status, Err: err}
}

func isTransientStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func missingID(op string) error {
	return &domain.PermanentError{Op: op, Err: errors.New("response has no id")}
}
