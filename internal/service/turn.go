package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/assistant"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/protocol"
)

// SubmitTurn runs one user turn against the conversation's thread and returns
// the assistant's reply with the draft found in it. Every failure is folded
// into a user-facing reply.
func (s *Service) SubmitTurn(ctx context.Context, conversationID string, req domain.SubmitTurnRequest) *domain.TurnResult {
	start := time.Now()
	if conversationID == "" {
		conversationID = NewConversationID()
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.metrics.ObserveTurn(domain.TurnOutcomeEmpty, time.Since(start))
		return &domain.TurnResult{ConversationID: conversationID, Status: domain.TurnOutcomeEmpty, Reply: msgEmptyInput}
	}

	if !s.tryAcquire(conversationID) {
		s.metrics.ObserveTurn(domain.TurnOutcomeBusy, time.Since(start))
		return &domain.TurnResult{ConversationID: conversationID, Status: domain.TurnOutcomeBusy, Reply: msgBusy}
	}
	defer s.release(conversationID)

	if s.config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TurnTimeout)
		defer cancel()
	}

	result := s.runTurn(ctx, conversationID, text)
	s.metrics.ObserveTurn(result.Status, time.Since(start))
	return result
}

func (s *Service) runTurn(ctx context.Context, convID, text string) *domain.TurnResult {
	// Bookkeeping must survive a cancelled caller.
	bg := context.WithoutCancel(ctx)

	conv, err := s.resolveConversation(ctx, convID)
	if err != nil {
		return s.failTurn(bg, convID, nil, err)
	}

	previous, err := s.store.GetLatestTurn(ctx, convID)
	if err != nil {
		log.Printf("WARN: failed to get latest turn of %s: %v", convID, err)
	}

	turn := &domain.Turn{
		TurnID:         "turn_" + uuid.New().String()[:8],
		ConversationID: convID,
		ThreadID:       conv.ThreadID,
		UserText:       text,
		Outcome:        domain.TurnOutcomePending,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateTurn(bg, turn); err != nil {
		log.Printf("ERROR: failed to save turn: %v", err)
	}
	s.logEvent(bg, convID, turn.TurnID, domain.EventTypeTurnStarted, domain.TurnStartedPayload{
		ThreadID: conv.ThreadID,
		Text:     text,
	})

	if err := s.awaitPreviousRun(ctx, previous); err != nil {
		return s.failTurn(bg, convID, turn, fmt.Errorf("previous run: %w", err))
	}

	msgID, err := s.assistant.AppendUserMessage(ctx, conv.ThreadID, text)
	if err != nil {
		return s.failTurn(bg, convID, turn, err)
	}
	s.logEvent(bg, convID, turn.TurnID, domain.EventTypeMessageAppended, domain.MessageAppendedPayload{MessageID: msgID})

	run, err := s.assistant.CreateRun(ctx, conv.ThreadID)
	if err != nil {
		return s.failTurn(bg, convID, turn, err)
	}
	turn.RunID = run.ID
	turn.RunStatus = run.Status
	if err := s.store.UpdateTurn(bg, turn); err != nil {
		log.Printf("ERROR: failed to update turn: %v", err)
	}
	s.logEvent(bg, convID, turn.TurnID, domain.EventTypeRunCreated, domain.RunCreatedPayload{RunID: run.ID, Status: run.Status})
	s.push(convID, s.runStarted(convID, turn, run))

	pollCtx := assistant.WithPollFunc(ctx, func(attempt int, polled *domain.Run) {
		turn.RunStatus = polled.Status
		s.logEvent(bg, convID, turn.TurnID, domain.EventTypeRunPolled, domain.RunPolledPayload{
			RunID:   polled.ID,
			Attempt: attempt,
			Status:  polled.Status,
		})
		s.push(convID, s.runStatus(convID, turn, attempt, polled.Status))
	})

	final, err := s.assistant.WaitForRun(pollCtx, conv.ThreadID, run.ID, s.config.RunPollAttempts, s.config.RunPollInterval)
	if err != nil {
		return s.failTurn(bg, convID, turn, err)
	}
	turn.RunStatus = final.Status
	s.logEvent(bg, convID, turn.TurnID, domain.EventTypeRunTerminal, domain.RunTerminalPayload{
		RunID:     final.ID,
		Status:    final.Status,
		LastError: final.LastError,
	})

	if final.Status != domain.RunStatusCompleted {
		log.Printf("WARN: run %s on thread %s ended %s", final.ID, conv.ThreadID, final.Status)
		return s.finishTurn(bg, turn, domain.TurnOutcomeRunFailed, runFailureMessage(final), nil, fmt.Errorf("run %s", final.Status))
	}

	messages, err := s.assistant.GetMessages(ctx, conv.ThreadID)
	if err != nil {
		return s.failTurn(bg, convID, turn, err)
	}

	reply := lastAssistantReply(messages)
	draft, ok := s.interpreter.Extract(reply)
	if ok {
		s.logEvent(bg, convID, turn.TurnID, domain.EventTypeDraftExtracted, domain.DraftExtractedPayload{Draft: *draft})
	} else {
		draft = nil
	}

	return s.finishTurn(bg, turn, domain.TurnOutcomeReplied, reply, draft, nil)
}

// awaitPreviousRun blocks until a run left open by an abandoned turn is
// terminal, so that the thread never holds two open runs.
func (s *Service) awaitPreviousRun(ctx context.Context, previous *domain.Turn) error {
	if previous == nil || previous.RunID == "" || previous.RunStatus.IsTerminal() {
		return nil
	}

	log.Printf("INFO: waiting for run %s of turn %s before a new turn", previous.RunID, previous.TurnID)
	run, err := s.assistant.WaitForRun(ctx, previous.ThreadID, previous.RunID, s.config.RunPollAttempts, s.config.RunPollInterval)
	if err != nil {
		return err
	}

	previous.RunStatus = run.Status
	if err := s.store.UpdateTurn(context.WithoutCancel(ctx), previous); err != nil {
		log.Printf("ERROR: failed to update turn %s: %v", previous.TurnID, err)
	}
	return nil
}

// failTurn ends a turn that hit an error. turn is nil when the failure
// happened before the turn could be recorded.
func (s *Service) failTurn(ctx context.Context, convID string, turn *domain.Turn, err error) *domain.TurnResult {
	outcome, text := classifyFailure(err)
	log.Printf("ERROR: turn on conversation %s failed: %v", convID, err)

	if turn == nil {
		result := &domain.TurnResult{ConversationID: convID, Status: outcome, Reply: text}
		s.push(convID, replyMessage(result, ""))
		return result
	}
	return s.finishTurn(ctx, turn, outcome, text, nil, err)
}

// finishTurn stores the final state of the turn and pushes the reply.
func (s *Service) finishTurn(ctx context.Context, turn *domain.Turn, outcome domain.TurnOutcome, reply string, draft *domain.Draft, cause error) *domain.TurnResult {
	now := time.Now()
	turn.Outcome = outcome
	turn.ReplyText = reply
	turn.Draft = draft
	turn.CompletedAt = &now
	if err := s.store.UpdateTurn(ctx, turn); err != nil {
		log.Printf("ERROR: failed to update turn: %v", err)
	}

	if cause != nil {
		s.logEvent(ctx, turn.ConversationID, turn.TurnID, domain.EventTypeTurnFailed, domain.TurnFailedPayload{
			Outcome: outcome,
			Error:   cause.Error(),
		})
	}

	result := &domain.TurnResult{
		ConversationID: turn.ConversationID,
		TurnID:         turn.TurnID,
		Status:         outcome,
		Reply:          reply,
		Draft:          draft,
	}
	s.push(turn.ConversationID, replyMessage(result, turn.RunID))
	return result
}

// lastAssistantReply returns the content of the most recent assistant
// message. messages are oldest first.
func lastAssistantReply(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(messages[i].Content) == "" {
			return msgEmptyAssistant
		}
		return messages[i].Content
	}
	return msgNoAssistantReply
}

func (s *Service) runStarted(convID string, turn *domain.Turn, run *domain.Run) protocol.RunStartedMessage {
	msg := protocol.RunStartedMessage{BaseMessage: protocol.NewBase(protocol.TypeRunStarted, convID), Status: run.Status}
	msg.TurnID = turn.TurnID
	msg.RunID = run.ID
	return msg
}

func (s *Service) runStatus(convID string, turn *domain.Turn, attempt int, status domain.RunStatus) protocol.RunStatusMessage {
	msg := protocol.RunStatusMessage{BaseMessage: protocol.NewBase(protocol.TypeRunStatus, convID), Attempt: attempt, Status: status}
	msg.TurnID = turn.TurnID
	msg.RunID = turn.RunID
	return msg
}

func replyMessage(result *domain.TurnResult, runID string) protocol.ReplyMessage {
	msg := protocol.ReplyMessage{
		BaseMessage: protocol.NewBase(protocol.TypeReply, result.ConversationID),
		Status:      result.Status,
		Reply:       result.Reply,
		Draft:       result.Draft,
	}
	msg.TurnID = result.TurnID
	msg.RunID = runID
	return msg
}
