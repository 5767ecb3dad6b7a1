// Package notifier delivers mission confirmations to requesters.
package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Notifier sends one confirmation per persisted mission.
type Notifier interface {
	// SendConfirmation tells the requester that the mission was recorded
	// under recordID.
	SendConfirmation(ctx context.Context, mission domain.Mission, recordID string) error

	// Name identifies the delivery channel in logs and metrics.
	Name() string

	// Close releases any held connection.
	Close() error
}

// New creates the notifier selected by cfg.Notifier. Mock mode always logs.
func New(cfg *config.Config) (Notifier, error) {
	if cfg.IsMock() {
		log.Println("FREELANCEFLOW_MODE=MOCK detected, logging confirmations instead of sending them")
		return NewLogNotifier(), nil
	}

	switch cfg.Notifier {
	case "smtp", "":
		n, err := NewSMTPNotifier(SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SMTPFromName,
			Timeout:   cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, err
		}
		return n, nil
	case "amqp":
		n, err := DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRouting)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "log":
		return NewLogNotifier(), nil
	}
	return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
}

// LogNotifier writes confirmations to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// SendConfirmation logs the confirmation.
func (n *LogNotifier) SendConfirmation(ctx context.Context, mission domain.Mission, recordID string) error {
	log.Printf("INFO: mission %s confirmed for %s (service=%q, price=%.2f)", recordID, mission.ClientEmail, mission.Service, mission.Price)
	return nil
}

// Name returns "log".
func (n *LogNotifier) Name() string { return "log" }

// Close is a no-op.
func (n *LogNotifier) Close() error { return nil }
