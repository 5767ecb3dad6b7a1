package assistant

import (
	"context"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// PollFunc is notified after every poll issued by WaitForRun.
type PollFunc func(attempt int, run *domain.Run)

type pollKey struct{}

// WithPollFunc returns a context that makes WaitForRun report each poll to fn.
func WithPollFunc(ctx context.Context, fn PollFunc) context.Context {
	return context.WithValue(ctx, pollKey{}, fn)
}

func pollFuncFrom(ctx context.Context) PollFunc {
	fn, _ := ctx.Value(pollKey{}).(PollFunc)
	return fn
}

// waitForRun polls getRun until a terminal status. The first poll is issued
// immediately and a delay separates consecutive polls; there is no wait after
// the last one.
func waitForRun(
	ctx context.Context,
	getRun func(ctx context.Context) (*domain.Run, error),
	sleep func(ctx context.Context, d time.Duration) error,
	threadID, runID string,
	maxAttempts int,
	delay time.Duration,
) (*domain.Run, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if delay < 0 {
		delay = 0
	}
	notify := pollFuncFrom(ctx)

	var last domain.RunStatus
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		run, err := getRun(ctx)
		if err != nil {
			return nil, err
		}
		if notify != nil {
			notify(attempt, run)
		}
		if run.Status.IsTerminal() {
			return run, nil
		}
		last = run.Status

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &domain.RunTimeoutError{
		ThreadID:   threadID,
		RunID:      runID,
		Attempts:   maxAttempts,
		LastStatus: last,
	}
}
