package airtable

import (
	"log"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/config"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/retry"
)

// NewRecordStore creates the record store for the configured mode.
func NewRecordStore(cfg *config.Config, policy *retry.Policy, m *metrics.Metrics) RecordStore {
	if cfg.IsMock() {
		log.Println("FREELANCEFLOW_MODE=MOCK detected, using in-memory record store")
		return NewMockClient()
	}
	return NewClient(cfg.AirtableBaseURL, cfg.AirtableAPIKey, cfg.AirtableBaseID, cfg.AirtableTable, cfg.HTTPTimeout, policy, m)
}
