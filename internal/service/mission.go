package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/adapter/airtable"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/policy"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/protocol"
)

// ConfirmDraft persists a confirmed draft as a mission and sends exactly one
// confirmation to the client. The result always carries a user-facing message.
func (s *Service) ConfirmDraft(ctx context.Context, req domain.ConfirmDraftRequest) *domain.ConfirmDraftResult {
	req.Service = strings.TrimSpace(req.Service)
	req.Description = strings.TrimSpace(req.Description)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	if req.Source == "" {
		req.Source = domain.MissionSourceAPI
	}

	if msg := validateDraft(req); msg != "" {
		s.metrics.IncMission("invalid")
		return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{Accepted: false, Message: msg})
	}

	mission := domain.NewMission(req.Draft(), req.ClientEmail)

	if s.policyEngine != nil {
		decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
			Service:         mission.Service,
			Description:     mission.Description,
			Price:           mission.Price,
			ClientEmail:     mission.ClientEmail,
			Source:          req.Source,
			ReviewThreshold: s.config.ReviewPriceThreshold,
		})
		if err != nil {
			log.Printf("ERROR: intake policy failed: %v", err)
			s.metrics.IncMission("failed")
			return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{Accepted: false, Message: msgPolicyFailed})
		}

		switch decision.Decision {
		case domain.PolicyDecisionBlock:
			log.Printf("INFO: mission for %s blocked: %s", mission.ClientEmail, decision.Reason)
			s.missionEvent(ctx, req.ConversationID, domain.EventTypeMissionRejected, domain.MissionPayload{
				Decision: decision.Decision,
				Reason:   decision.Reason,
			})
			s.metrics.IncMission("blocked")
			return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{Accepted: false, Message: msgMissionBlocked(decision.Reason)})
		case domain.PolicyDecisionRequireReview:
			mission.Status = domain.MissionStatusReview
		}
	}

	rec, err := s.records.CreateRecord(ctx, airtable.MissionFields(mission))
	if err != nil {
		log.Printf("ERROR: failed to create mission record: %v", err)
		s.missionEvent(ctx, req.ConversationID, domain.EventTypeMissionRejected, domain.MissionPayload{Error: err.Error()})
		s.metrics.IncMission("failed")
		return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{Accepted: false, Message: msgMissionStoreFail})
	}

	bg := context.WithoutCancel(ctx)
	entry := &domain.MissionEntry{
		RecordID:       rec.ID,
		ConversationID: req.ConversationID,
		Source:         req.Source,
		Mission:        mission,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMission(bg, entry); err != nil {
		log.Printf("ERROR: failed to save mission %s locally: %v", rec.ID, err)
	}

	err = s.notifier.SendConfirmation(ctx, mission, rec.ID)
	s.metrics.IncNotification(s.notifier.Name(), err)
	if err != nil {
		log.Printf("ERROR: failed to send confirmation for %s: %v", rec.ID, err)
		s.missionEvent(bg, req.ConversationID, domain.EventTypeNotificationFailed, domain.MissionPayload{
			RecordID: rec.ID,
			Error:    err.Error(),
		})
		s.metrics.IncMission("unnotified")
		return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{
			Accepted:  false,
			Reference: rec.ID,
			Status:    mission.Status,
			Message:   msgNotificationFailed(rec.ID),
		})
	}
	if err := s.store.MarkMissionNotified(bg, rec.ID, time.Now()); err != nil {
		log.Printf("ERROR: failed to mark mission %s notified: %v", rec.ID, err)
	}

	s.missionEvent(bg, req.ConversationID, domain.EventTypeMissionConfirmed, domain.MissionPayload{RecordID: rec.ID})

	msg := msgMissionAccepted
	if mission.Status == domain.MissionStatusReview {
		msg = msgMissionReview
		s.metrics.IncMission("review")
	} else {
		s.metrics.IncMission("accepted")
	}
	log.Printf("INFO: mission %s recorded for %s", rec.ID, mission.ClientEmail)

	return s.confirmed(req.ConversationID, &domain.ConfirmDraftResult{
		Accepted:  true,
		Reference: rec.ID,
		Status:    mission.Status,
		Message:   msg,
	})
}

// GetMission returns a mission as stored remotely, enriched with the local
// bookkeeping when present.
func (s *Service) GetMission(ctx context.Context, recordID string) (*domain.MissionEntry, error) {
	local, err := s.store.GetMission(ctx, recordID)
	if err != nil {
		log.Printf("WARN: failed to read local mission %s: %v", recordID, err)
	}

	rec, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			log.Printf("WARN: serving local copy of mission %s: %v", recordID, err)
			return local, nil
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}

	return mergeEntry(rec, local), nil
}

// UpdateMission changes the status fields of a mission remotely and locally.
func (s *Service) UpdateMission(ctx context.Context, recordID string, req domain.UpdateMissionRequest) (*domain.MissionEntry, error) {
	fields := airtable.StatusFields(strings.TrimSpace(req.Status), strings.TrimSpace(req.InvoiceStatus))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: status or invoice_status is required", domain.ErrInvalidRequest)
	}

	rec, err := s.records.UpdateRecord(ctx, recordID, fields)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update mission: %w", err)
	}

	if err := s.store.UpdateMissionStatus(ctx, recordID, strings.TrimSpace(req.Status), strings.TrimSpace(req.InvoiceStatus)); err != nil {
		log.Printf("ERROR: failed to update local mission %s: %v", recordID, err)
	}

	local, err := s.store.GetMission(ctx, recordID)
	if err != nil {
		log.Printf("WARN: failed to read local mission %s: %v", recordID, err)
	}
	return mergeEntry(rec, local), nil
}

func mergeEntry(rec *domain.Record, local *domain.MissionEntry) *domain.MissionEntry {
	entry := &domain.MissionEntry{
		RecordID: rec.ID,
		Mission:  airtable.MissionFromRecord(rec),
	}
	if local != nil {
		entry.ConversationID = local.ConversationID
		entry.Source = local.Source
		entry.NotifiedAt = local.NotifiedAt
		entry.CreatedAt = local.CreatedAt
	}
	return entry
}

// validateDraft returns the user-facing reason the request is unusable, or
// "" when it is complete.
func validateDraft(req domain.ConfirmDraftRequest) string {
	if req.Service == "" || req.Description == "" || req.ClientEmail == "" {
		return msgMissionIncomplete
	}
	if req.Price < 0 || math.IsNaN(req.Price) || math.IsInf(req.Price, 0) {
		return msgInvalidPrice
	}
	if cents := req.Price * 100; math.Abs(cents-math.Round(cents)) > 1e-6 {
		return msgInvalidPrice
	}
	addr, err := mail.ParseAddress(req.ClientEmail)
	if err != nil || addr.Address != req.ClientEmail {
		return msgInvalidEmail
	}
	return ""
}

func (s *Service) missionEvent(ctx context.Context, convID string, eventType domain.EventType, payload domain.MissionPayload) {
	if convID == "" {
		return
	}
	s.logEvent(ctx, convID, "", eventType, payload)
}

// confirmed pushes the result to the conversation and returns it.
func (s *Service) confirmed(convID string, result *domain.ConfirmDraftResult) *domain.ConfirmDraftResult {
	if convID != "" {
		s.push(convID, protocol.ConfirmedMessage{
			BaseMessage: protocol.NewBase(protocol.TypeConfirmed, convID),
			Accepted:    result.Accepted,
			Reference:   result.Reference,
			Status:      result.Status,
			Message:     result.Message,
		})
	}
	return result
}
