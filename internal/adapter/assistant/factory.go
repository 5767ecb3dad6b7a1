package assistant

import (
	"log"

	"golang.org/x/time/rate"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

// NewAssistantClient creates an assistant client based on the configured mode.
// If FREELANCEFLOW_MODE=MOCK, returns a MockClient; otherwise returns a real
// Client sharing one rate limiter across every conversation.
func NewAssistantClient(cfg *config.Config, policy *retry.Policy, m *metrics.Metrics) AssistantClient {
	if cfg.IsMock() {
		log.Println("FREELANCEFLOW_MODE=MOCK detected, using mock assistant client")
		return NewMockClient()
	}

	opts := []Option{WithRetryPolicy(policy), WithMetrics(m)}
	if cfg.AssistantRateLimit > 0 {
		burst := cfg.AssistantBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.AssistantRateLimit), burst)))
	}

	return NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIAssistantID, cfg.HTTPTimeout, opts...)
}
