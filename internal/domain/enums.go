// Package domain defines the core domain models for the assistant run orchestrator.
package domain

// RunStatus represents the status of a remote assistant run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
)

// IsTerminal reports whether no further transition can follow this status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// Role is the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnOutcome summarizes how a user turn ended.
type TurnOutcome string

const (
	TurnOutcomeReplied   TurnOutcome = "replied"
	TurnOutcomeEmpty     TurnOutcome = "empty"
	TurnOutcomeBusy      TurnOutcome = "busy"
	TurnOutcomeTimeout   TurnOutcome = "timeout"
	TurnOutcomeRunFailed TurnOutcome = "run_failed"
	TurnOutcomeError     TurnOutcome = "error"
	TurnOutcomePending   TurnOutcome = "pending"
)

// EventType represents the type of a conversation trail event.
type EventType string

const (
	EventTypeTurnStarted        EventType = "turn_started"
	EventTypeMessageAppended    EventType = "message_appended"
	EventTypeRunCreated         EventType = "run_created"
	EventTypeRunPolled          EventType = "run_polled"
	EventTypeRunTerminal        EventType = "run_terminal"
	EventTypeDraftExtracted     EventType = "draft_extracted"
	EventTypeTurnFailed         EventType = "turn_failed"
	EventTypeMissionConfirmed   EventType = "mission_confirmed"
	EventTypeMissionRejected    EventType = "mission_rejected"
	EventTypeNotificationFailed EventType = "notification_failed"
)

// Mission status values as stored in the tabular store.
const (
	MissionStatusPending = "En attente"
	MissionStatusReview  = "À valider"
	InvoiceStatusUnpaid  = "non payée"
	MissionSourceChat    = "chat"
	MissionSourceForm    = "form"
	MissionSourceAPI     = "api"
)

// PolicyDecision is the outcome of the mission intake policy.
type PolicyDecision string

const (
	PolicyDecisionAllow         PolicyDecision = "allow"
	PolicyDecisionRequireReview PolicyDecision = "require_review"
	PolicyDecisionBlock         PolicyDecision = "block"
)
