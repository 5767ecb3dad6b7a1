package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/airtable"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/assistant"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/notifier"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/hub"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/interpreter"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/policy"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/repository"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/service"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/session"
	handler "github.com/workmusicalflow/FreelanceFlow-v1/internal/transport/http"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting FreelanceFlow...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Session store: %s", cfg.SessionStore)
	log.Printf("Notifier: %s", cfg.Notifier)
	if cfg.IsMock() {
		log.Printf("Mode: %s", cfg.Mode)
	}

	ctx := context.Background()
	m := metrics.New()

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize session store
	var sessions session.Store
	switch cfg.SessionStore {
	case "sqlite", "":
	case "memory":
		sessions = session.NewMemoryStore()
	case "redis":
		rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize session store: %v", err)
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	default:
		log.Fatalf("Unknown session store %q", cfg.SessionStore)
	}

	// Initialize remote clients
	assistantClient := assistant.NewAssistantClient(cfg, newRetryPolicy(cfg, m, "assistant"), m)
	records := airtable.NewRecordStore(cfg, newRetryPolicy(cfg, m, "airtable"), m)

	notif, err := notifier.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}
	defer notif.Close()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service
	svc := service.New(db, sessions, assistantClient, interpreter.NewLabelInterpreter(), records, notif, cfg, policyEngine, m)

	// Initialize hub
	h := hub.NewHub()
	h.OnCountChange = m.SetWSConnections
	svc.SetPusher(h)

	stopHub := make(chan struct{})
	go h.Run(stopHub)

	server := handler.NewServer(svc, ws.NewServer(cfg, h, svc), m)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down FreelanceFlow...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}
	close(stopHub)

	log.Println("FreelanceFlow stopped")
}

// newRetryPolicy builds the retry policy of one remote service from the
// configuration.
func newRetryPolicy(cfg *config.Config, m *metrics.Metrics, name string) *retry.Policy {
	p := retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryDelay)
	p.Multiplier = cfg.RetryMultiplier
	p.MaxDelay = cfg.RetryMaxDelay
	p.OnRetry = func(attempt int, err error) {
		log.Printf("WARN: %s call failed (attempt %d/%d), retrying: %v", name, attempt, cfg.RetryMaxAttempts, err)
		m.IncRetry(name)
	}
	return p
}
