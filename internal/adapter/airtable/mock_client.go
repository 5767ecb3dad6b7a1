package airtable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// MockClient keeps rows in memory.
type MockClient struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

// NewMockClient creates a new in-memory record store.
func NewMockClient() *MockClient {
	return &MockClient{records: make(map[string]*domain.Record)}
}

// Ensure MockClient implements RecordStore interface.
var _ RecordStore = (*MockClient)(nil)

// CreateRecord stores a copy of fields under a generated id.
func (m *MockClient) CreateRecord(ctx context.Context, fields map[string]interface{}) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &domain.Record{
		ID:          "rec" + uuid.New().String()[:8],
		CreatedTime: time.Now().UTC().Format(time.RFC3339),
		Fields:      copyFields(fields),
	}
	m.records[rec.ID] = rec
	out := *rec
	out.Fields = copyFields(rec.Fields)
	return &out, nil
}

// UpdateRecord merges fields into an existing row.
func (m *MockClient) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record: %w", domain.ErrNotFound)
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	out := *rec
	out.Fields = copyFields(rec.Fields)
	return &out, nil
}

// GetRecord returns a copy of a row.
func (m *MockClient) GetRecord(ctx context.Context, recordID string) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record: %w", domain.ErrNotFound)
	}
	out := *rec
	out.Fields = copyFields(rec.Fields)
	return &out, nil
}

func copyFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
