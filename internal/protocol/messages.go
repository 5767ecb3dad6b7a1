// Package protocol defines the WebSocket message protocol between chat
// clients and the service.
package protocol

import (
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// Message types from client to server
const (
	TypeHello   = "hello"
	TypeTurn    = "turn"
	TypeConfirm = "confirm"
)

// Message types from server to client
const (
	TypeHelloAck   = "hello_ack"
	TypeRunStarted = "run_started"
	TypeRunStatus  = "run_status"
	TypeReply      = "reply"
	TypeConfirmed  = "confirmed"
	TypeError      = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type           string `json:"type"`
	Ts             int64  `json:"ts"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TurnID         string `json:"turn_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

// NewBase returns a BaseMessage of the given type stamped with the current time.
func NewBase(msgType, conversationID string) BaseMessage {
	return BaseMessage{Type: msgType, Ts: time.Now().UnixMilli(), ConversationID: conversationID}
}

// HelloMessage is sent by the client to open or resume a conversation.
type HelloMessage struct {
	BaseMessage
}

// HelloAckMessage is sent by the server after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	ReadyForInput bool   `json:"ready_for_input"`
	Message       string `json:"message,omitempty"`
}

// TurnMessage carries one user turn.
type TurnMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ConfirmMessage asks the server to persist a draft.
type ConfirmMessage struct {
	BaseMessage
	Service     string  `json:"service"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ClientEmail string  `json:"client_email"`
}

// RunStartedMessage is pushed once the remote run exists.
type RunStartedMessage struct {
	BaseMessage
	Status domain.RunStatus `json:"status"`
}

// RunStatusMessage is pushed after each poll of the run.
type RunStatusMessage struct {
	BaseMessage
	Attempt int              `json:"attempt"`
	Status  domain.RunStatus `json:"status"`
}

// ReplyMessage is the final result of a turn.
type ReplyMessage struct {
	BaseMessage
	Status domain.TurnOutcome `json:"status"`
	Reply  string             `json:"reply"`
	Draft  *domain.Draft      `json:"draft,omitempty"`
}

// ConfirmedMessage is the result of a confirm request.
type ConfirmedMessage struct {
	BaseMessage
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message"`
}

// ErrorMessage is sent when a message cannot be processed.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage       = "invalid_message"
	ErrorCodeConversationRequired = "conversation_required"
	ErrorCodeInternalError        = "internal_error"
)
