package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvMode, "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("RUN_POLL_ATTEMPTS", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("NOTIFIER", "")

	cfg := Load()

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.SessionStore)
	assert.Equal(t, "smtp", cfg.Notifier)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 2.0, cfg.RetryMultiplier)
	assert.Equal(t, 30, cfg.RunPollAttempts)
	assert.Equal(t, time.Second, cfg.RunPollInterval)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.IsMock())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(EnvMode, "mock")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REVIEW_PRICE_THRESHOLD", "1500.5")
	t.Setenv("RUN_POLL_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.True(t, cfg.IsMock())
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "redis", cfg.SessionStore)
	assert.Equal(t, 1500.5, cfg.ReviewPriceThreshold)
	assert.Equal(t, 30, cfg.RunPollAttempts)
}

func TestValidateReportsAllMissingKeys(t *testing.T) {
	cfg := &Config{Notifier: "smtp", SMTPHost: "smtp.example.com", OpenAIAPIKey: "  "}

	err := cfg.Validate()
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{
		"OPENAI_API_KEY",
		"OPENAI_ASSISTANT_ID",
		"AIRTABLE_API_KEY",
		"AIRTABLE_BASE_ID",
		"AIRTABLE_MISSIONS_TABLE",
		"SMTP_USERNAME",
		"SMTP_PASSWORD",
		"SMTP_FROM_EMAIL",
	}, cfgErr.Keys)
}

func TestValidateComplete(t *testing.T) {
	cfg := &Config{
		OpenAIAPIKey:      "sk-test",
		OpenAIAssistantID: "asst_1",
		AirtableAPIKey:    "key",
		AirtableBaseID:    "app1",
		AirtableTable:     "Missions",
		Notifier:          "log",
		SessionStore:      "redis",
		RedisURL:          "redis://localhost:6379/0",
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidateSkippedInMockMode(t *testing.T) {
	cfg := &Config{Mode: ModeMock}
	assert.NoError(t, cfg.Validate())
}
