package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
	Header http.Header
}

type fakePlatform struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body, Header: r.Header.Clone()})
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakePlatform) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request), opts ...Option) (*Client, *fakePlatform) {
	t.Helper()
	fake := &fakePlatform{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "sk-test", "asst_test", 5*time.Second, opts...), fake
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientUsesSameThreadAcrossCalls(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			writeJSON(w, 200, map[string]string{"id": "thread_abc"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			writeJSON(w, 200, map[string]string{"id": "msg_1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			writeJSON(w, 200, map[string]string{"id": "run_1", "status": "queued"})
		default:
			writeJSON(w, 404, map[string]interface{}{"error": map[string]string{"message": "unexpected"}})
		}
	})
	ctx := context.Background()

	threadID, err := client.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, err := client.AppendUserMessage(ctx, threadID, "Bonjour"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	run, err := client.CreateRun(ctx, threadID)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != "run_1" || run.Status != domain.RunStatusQueued || run.ThreadID != "thread_abc" {
		t.Fatalf("unexpected run: %+v", run)
	}

	reqs := fake.requests
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if reqs[1].Path != "/threads/thread_abc/messages" || reqs[2].Path != "/threads/thread_abc/runs" {
		t.Fatalf("thread id not reused: %s, %s", reqs[1].Path, reqs[2].Path)
	}
	if reqs[1].Body["role"] != "user" || reqs[1].Body["content"] != "Bonjour" {
		t.Fatalf("unexpected message body: %v", reqs[1].Body)
	}
	if reqs[2].Body["assistant_id"] != "asst_test" {
		t.Fatalf("unexpected run body: %v", reqs[2].Body)
	}
	for _, r := range reqs {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("missing bearer header on %s", r.Path)
		}
		if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
			t.Fatalf("missing beta header on %s", r.Path)
		}
	}
}

func TestWaitForRunReturnsOnFirstTerminal(t *testing.T) {
	statuses := []string{"queued", "in_progress", "completed"}
	var polls int32
	var delays []time.Duration

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&polls, 1) - 1
		writeJSON(w, 200, map[string]string{"id": "run_1", "status": statuses[i]})
	}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	run, err := client.WaitForRun(context.Background(), "thread_1", "run_1", 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 delays, got %d", len(delays))
	}
	for _, d := range delays {
		if d != 50*time.Millisecond {
			t.Fatalf("unexpected delay %v", d)
		}
	}
}

func TestWaitForRunTimesOut(t *testing.T) {
	var polls int32
	var delays int

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		writeJSON(w, 200, map[string]string{"id": "run_1", "status": "in_progress"})
	}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		delays++
		return nil
	}))

	_, err := client.WaitForRun(context.Background(), "thread_1", "run_1", 3, 0)
	var timeout *domain.RunTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected RunTimeoutError, got %v", err)
	}
	if !errors.Is(err, domain.ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if timeout.LastStatus != domain.RunStatusInProgress || timeout.Attempts != 3 {
		t.Fatalf("unexpected timeout details: %+v", timeout)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
	if delays != 2 {
		t.Fatalf("expected 2 delays, got %d", delays)
	}
}

func TestWaitForRunReportsFailedRun(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{
			"id":         "run_1",
			"status":     "failed",
			"last_error": map[string]string{"code": "rate_limit_exceeded", "message": "quota reached"},
		})
	})

	run, err := client.WaitForRun(context.Background(), "thread_1", "run_1", 5, 0)
	if err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	if run.Status != domain.RunStatusFailed || run.LastError == nil || run.LastError.Message != "quota reached" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestWaitForRunNotifiesPolls(t *testing.T) {
	statuses := []string{"queued", "completed"}
	var polls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&polls, 1) - 1
		writeJSON(w, 200, map[string]string{"id": "run_1", "status": statuses[i]})
	})

	var seen []domain.RunStatus
	ctx := WithPollFunc(context.Background(), func(attempt int, run *domain.Run) {
		seen = append(seen, run.Status)
	})
	if _, err := client.WaitForRun(ctx, "thread_1", "run_1", 5, 0); err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	want := []domain.RunStatus{domain.RunStatusQueued, domain.RunStatusCompleted}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
}

func TestWaitForRunHonoursCancellation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "run_1", "status": "in_progress"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.WaitForRun(ctx, "thread_1", "run_1", 100, time.Hour)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientMissingKeyIsConfigError(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "x"})
	})
	client.apiKey = ""

	_, err := client.CreateThread(context.Background())
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cfgErr.Keys) != 1 || cfgErr.Keys[0] != "OPENAI_API_KEY" {
		t.Fatalf("unexpected keys: %v", cfgErr.Keys)
	}
	if fake.count() != 0 {
		t.Fatalf("expected no remote call, got %d", fake.count())
	}
}

func TestCreateRunMissingAssistantIsConfigError(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "x"})
	})
	client.assistantID = " "

	_, err := client.CreateRun(context.Background(), "thread_1")
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Keys[0] != "OPENAI_ASSISTANT_ID" {
		t.Fatalf("expected ConfigError for assistant id, got %v", err)
	}
	if fake.count() != 0 {
		t.Fatalf("expected no remote call, got %d", fake.count())
	}
}

func TestGetMessagesOldestFirstAndStable(t *testing.T) {
	page := `{"object":"list","data":[
		{"id":"m4","object":"thread.message","role":"assistant","created_at":40,"content":[{"type":"text","text":{"value":"Service: Logo","annotations":[]}},{"type":"text","text":{"value":"Prix: 250€","annotations":[]}}]},
		{"id":"m3","object":"thread.message","role":"user","created_at":30,"content":[{"type":"text","text":{"value":"second","annotations":[]}}]},
		{"id":"m2","object":"thread.message","role":"assistant","created_at":20,"content":[{"type":"image_file","image_file":{"file_id":"file_1"}},{"type":"text","text":{"value":"after image","annotations":[]}}]},
		{"id":"m1","object":"thread.message","role":"user","created_at":10,"content":[{"type":"text","text":{"value":"first","annotations":[]}}]}
	],"has_more":false}`
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(page))
	})
	ctx := context.Background()

	first, err := client.GetMessages(ctx, "thread_1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	second, err := client.GetMessages(ctx, "thread_1")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical sequences")
	}

	ids := make([]string, len(first))
	for i, m := range first {
		ids[i] = m.ID
	}
	if !reflect.DeepEqual(ids, []string{"m1", "m2", "m3", "m4"}) {
		t.Fatalf("expected oldest first, got %v", ids)
	}
	if first[1].Content != "after image" {
		t.Fatalf("expected non-text blocks skipped, got %q", first[1].Content)
	}
	if first[1].Role != domain.RoleAssistant || !first[1].CreatedAt.Equal(time.Unix(20, 0)) {
		t.Fatalf("unexpected message: %+v", first[1])
	}
	if first[3].Content != "Service: Logo\nPrix: 250€" {
		t.Fatalf("unexpected block content: %q", first[3].Content)
	}
	if first[0].ThreadID != "thread_1" {
		t.Fatalf("expected thread id fallback, got %q", first[0].ThreadID)
	}
	if fake.requests[0].Path != "/threads/thread_1/messages" {
		t.Fatalf("unexpected path %s", fake.requests[0].Path)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	var calls int32
	policy := retry.NewPolicy(3, time.Millisecond)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, 429, map[string]interface{}{"error": map[string]string{"message": "slow down", "type": "rate_limit"}})
			return
		}
		writeJSON(w, 200, map[string]string{"id": "thread_ok"})
	}, WithRetryPolicy(policy))

	id, err := client.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if id != "thread_ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected success on third call, got %q after %d", id, calls)
	}
}

func TestExhaustedRetriesAreRemoteUnavailable(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))

	_, err := client.CreateThread(context.Background())
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, 400, map[string]interface{}{"error": map[string]string{"message": "bad thread", "type": "invalid_request_error"}})
	}, WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))

	_, err := client.AppendUserMessage(context.Background(), "thread_1", "hi")
	var perm *domain.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if perm.StatusCode != 400 || !strings.Contains(perm.Error(), "bad thread") {
		t.Fatalf("unexpected permanent error: %v", perm)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestMalformedBodyAndMissingIDArePermanent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/threads" {
			_, _ = w.Write([]byte("{not json"))
			return
		}
		writeJSON(w, 200, map[string]string{"object": "thread.message"})
	}, WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))

	var perm *domain.PermanentError
	if _, err := client.CreateThread(context.Background()); !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError for malformed body, got %v", err)
	}
	if _, err := client.AppendUserMessage(context.Background(), "thread_1", "hi"); !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError for missing id, got %v", err)
	}
}

func TestCreateRunAdoptsActiveRunAfterFailedCreate(t *testing.T) {
	var creates, lists int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			atomic.AddInt32(&creates, 1)
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": map[string]string{"message": "upstream reset", "type": "server_error"}})
		case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/runs":
			atomic.AddInt32(&lists, 1)
			writeJSON(w, 200, map[string]interface{}{
				"object":   "list",
				"data":     []map[string]string{{"id": "run_1", "thread_id": "thread_1", "status": "in_progress"}},
				"has_more": false,
			})
		default:
			writeJSON(w, 404, map[string]interface{}{"error": map[string]string{"message": "unexpected"}})
		}
	}, WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))

	run, err := client.CreateRun(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != "run_1" || run.Status != domain.RunStatusInProgress {
		t.Fatalf("expected the active run to be adopted, got %+v", run)
	}
	if atomic.LoadInt32(&creates) != 1 || atomic.LoadInt32(&lists) != 1 {
		t.Fatalf("expected 1 create and 1 lookup, got %d and %d", creates, lists)
	}
}

func TestCreateRunRetriesWhenNoRunIsActive(t *testing.T) {
	var creates int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			if atomic.AddInt32(&creates, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, 200, map[string]string{"id": "run_2", "status": "queued"})
		case r.Method == http.MethodGet:
			writeJSON(w, 200, map[string]interface{}{
				"object":   "list",
				"data":     []map[string]string{{"id": "run_0", "thread_id": "thread_1", "status": "completed"}},
				"has_more": false,
			})
		}
	}, WithRetryPolicy(retry.NewPolicy(3, time.Millisecond)))

	run, err := client.CreateRun(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != "run_2" || atomic.LoadInt32(&creates) != 2 {
		t.Fatalf("expected a second create, got %+v after %d creates", run, creates)
	}
}

func TestMockClientCompletesWithDraft(t *testing.T) {
	mock := NewMockClient()
	mock.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	ctx := context.Background()

	threadID, err := mock.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if _, err := mock.AppendUserMessage(ctx, threadID, "Je veux un logo"); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	run, err := mock.CreateRun(ctx, threadID)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	done, err := mock.WaitForRun(ctx, threadID, run.ID, DefaultPollAttempts, DefaultPollDelay)
	if err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	if done.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	messages, err := mock.GetMessages(ctx, threadID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 || messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if !strings.Contains(messages[1].Content, "Service: Logo Design") || !strings.Contains(messages[1].Content, "Prix: 250.00€") {
		t.Fatalf("unexpected reply: %q", messages[1].Content)
	}
}
