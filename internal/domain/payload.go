package domain

// TurnStartedPayload is the payload for turn_started events.
type TurnStartedPayload struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// MessageAppendedPayload is the payload for message_appended events.
type MessageAppendedPayload struct {
	MessageID string `json:"message_id"`
}

// RunCreatedPayload is the payload for run_created events.
type RunCreatedPayload struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// RunPolledPayload is the payload for run_polled events.
type RunPolledPayload struct {
	RunID   string    `json:"run_id"`
	Attempt int       `json:"attempt"`
	Status  RunStatus `json:"status"`
}

// RunTerminalPayload is the payload for run_terminal events.
type RunTerminalPayload struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// DraftExtractedPayload is the payload for draft_extracted events.
type DraftExtractedPayload struct {
	Draft Draft `json:"draft"`
}

// TurnFailedPayload is the payload for turn_failed events.
type TurnFailedPayload struct {
	Outcome TurnOutcome `json:"outcome"`
	Error   string      `json:"error"`
}

// MissionPayload is the payload for mission_* and notification_failed events.
type MissionPayload struct {
	RecordID string         `json:"record_id,omitempty"`
	Decision PolicyDecision `json:"decision,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
}
