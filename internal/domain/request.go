package domain

// BeginConversationRequest opens or resumes a conversation.
type BeginConversationRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// BeginConversationResponse reports whether the conversation can take input.
type BeginConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	ReadyForInput  bool   `json:"ready_for_input"`
	Message        string `json:"message,omitempty"`
}

// SubmitTurnRequest carries the user's free text for one turn.
type SubmitTurnRequest struct {
	Text string `json:"text"`
}

// TurnResult is the outward result of one turn. Failures are expressed as a
// user-visible Reply, never as a raw error.
type TurnResult struct {
	ConversationID string      `json:"conversation_id"`
	TurnID         string      `json:"turn_id,omitempty"`
	Status         TurnOutcome `json:"status"`
	Reply          string      `json:"reply"`
	Draft          *Draft      `json:"draft,omitempty"`
}

// ConfirmDraftRequest asks to persist a draft on behalf of a client.
type ConfirmDraftRequest struct {
	ConversationID string  `json:"conversation_id,omitempty"`
	Service        string  `json:"service"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	ClientEmail    string  `json:"client_email"`
	Source         string  `json:"source,omitempty"`
}

// Draft returns the draft portion of the request.
func (r ConfirmDraftRequest) Draft() Draft {
	return Draft{Service: r.Service, Description: r.Description, Price: r.Price}
}

// ConfirmDraftResult is the outcome of a confirmation.
type ConfirmDraftResult struct {
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message"`
}

// UpdateMissionRequest changes the mutable fields of a persisted mission.
type UpdateMissionRequest struct {
	Status        string `json:"status,omitempty"`
	InvoiceStatus string `json:"invoice_status,omitempty"`
}

// LegacySendMessageRequest is the body of POST /chat/sendMessage.
type LegacySendMessageRequest struct {
	Message string `json:"message"`
}

// LegacySendMessageResponse is the body returned by POST /chat/sendMessage.
type LegacySendMessageResponse struct {
	Message string `json:"message"`
	Mission *Draft `json:"mission"`
}

// LegacySubmitMissionRequest is the body of POST /chat/submitMission.
type LegacySubmitMissionRequest struct {
	Service     string   `json:"service"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	ClientEmail string   `json:"clientEmail"`
}

// LegacySubmitMissionResponse is the body returned by POST /chat/submitMission.
type LegacySubmitMissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
