package domain

import (
	"encoding/json"
	"time"
)

// Message is a single entry of a remote thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RunError carries the platform's explanation for a failed or expired run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run is one execution of the assistant against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// Draft is a tentative service request extracted from an assistant reply.
type Draft struct {
	Service     string  `json:"service"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Conversation binds a caller-visible conversation identity to a remote thread.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	ThreadID       string    `json:"thread_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is the local record of one user turn.
type Turn struct {
	TurnID         string      `json:"turn_id"`
	ConversationID string      `json:"conversation_id"`
	ThreadID       string      `json:"thread_id"`
	RunID          string      `json:"run_id,omitempty"`
	RunStatus      RunStatus   `json:"run_status,omitempty"`
	UserText       string      `json:"user_text"`
	ReplyText      string      `json:"reply_text,omitempty"`
	Draft          *Draft      `json:"draft,omitempty"`
	Outcome        TurnOutcome `json:"outcome"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// Event is an entry of a conversation's trail.
type Event struct {
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"conversation_id"`
	TurnID         string          `json:"turn_id,omitempty"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Mission is a confirmed draft ready to be persisted in the tabular store.
type Mission struct {
	Service       string  `json:"service"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	ClientEmail   string  `json:"client_email"`
	Status        string  `json:"status"`
	InvoiceStatus string  `json:"invoice_status"`
}

// NewMission builds a mission from a draft with the default statuses.
func NewMission(d Draft, clientEmail string) Mission {
	return Mission{
		Service:       d.Service,
		Description:   d.Description,
		Price:         d.Price,
		ClientEmail:   clientEmail,
		Status:        MissionStatusPending,
		InvoiceStatus: InvoiceStatusUnpaid,
	}
}

// Record is a row of the remote tabular store.
type Record struct {
	ID          string                 `json:"id"`
	CreatedTime string                 `json:"createdTime,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
}

// MissionEntry is the local mirror of a mission submitted to the tabular store.
type MissionEntry struct {
	RecordID       string     `json:"record_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Source         string     `json:"source"`
	Mission        Mission    `json:"mission"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
