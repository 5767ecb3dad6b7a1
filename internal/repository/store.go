// Package repository defines the local persistence interface and its SQLite
// implementation.
package repository

import (
	"context"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/session"
)

// Store defines the interface for data persistence.
type Store interface {
	// Conversation bindings
	session.Store

	// Turn operations
	CreateTurn(ctx context.Context, turn *domain.Turn) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
	GetLatestTurn(ctx context.Context, conversationID string) (*domain.Turn, error)
	ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
	UpdateTurn(ctx context.Context, turn *domain.Turn) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, conversationID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Mission operations
	CreateMission(ctx context.Context, entry *domain.MissionEntry) error
	GetMission(ctx context.Context, recordID string) (*domain.MissionEntry, error)
	UpdateMissionStatus(ctx context.Context, recordID, status, invoiceStatus string) error
	MarkMissionNotified(ctx context.Context, recordID string, at time.Time) error

	// Lifecycle
	Close() error
}
