package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// User-facing texts.
const (
	msgEmptyInput        = "Désolé, je n'ai pas reçu de message."
	msgBusy              = "Une réponse est déjà en cours de préparation pour cette conversation. Veuillez patienter."
	msgNoAssistantReply  = "Je suis désolé, je n'ai pas pu trouver de réponse de l'assistant."
	msgEmptyAssistant    = "Pas de contenu renvoyé par l'assistant."
	msgTimeout           = "L'assistant n'a pas répondu à temps. Veuillez réessayer."
	msgCancelled         = "La demande a été annulée."
	msgNotConfigured     = "Le service de l'assistant n'est pas configuré. Veuillez contacter l'administrateur."
	msgUnavailable       = "L'assistant est momentanément indisponible. Veuillez réessayer dans quelques instants."
	msgRejected          = "L'assistant a refusé la demande. Veuillez reformuler votre message."
	msgUnexpected        = "Une erreur inattendue est survenue. Veuillez réessayer."
	msgReady             = "Bonjour ! Décrivez la mission dont vous avez besoin."
	msgBeginFailed       = "Impossible de démarrer la conversation avec l'assistant."
	msgMissionIncomplete = "Données de mission incomplètes"
	msgInvalidPrice      = "Le prix doit être un montant positif avec au plus deux décimales."
	msgInvalidEmail      = "Adresse email invalide."
	msgMissionAccepted   = "Mission soumise avec succès"
	msgMissionReview     = "Mission soumise avec succès. Elle sera validée manuellement avant confirmation."
	msgMissionStoreFail  = "Impossible d'enregistrer la mission. Veuillez réessayer plus tard."
	msgPolicyFailed      = "Impossible de vérifier la mission pour le moment. Veuillez réessayer plus tard."
)

func msgMissionBlocked(reason string) string {
	return "La mission a été refusée : " + reason
}

func msgNotificationFailed(reference string) string {
	return fmt.Sprintf("La mission a été enregistrée (référence %s) mais l'email de confirmation n'a pas pu être envoyé.", reference)
}

// runFailureMessage describes a run that ended without completing.
func runFailureMessage(run *domain.Run) string {
	var msg string
	switch run.Status {
	case domain.RunStatusExpired:
		msg = "La réponse de l'assistant a expiré."
	case domain.RunStatusCancelled:
		msg = "La réponse de l'assistant a été annulée."
	default:
		msg = "L'assistant n'a pas pu traiter votre demande."
	}
	if run.LastError != nil && run.LastError.Message != "" {
		msg += " Détail : " + run.LastError.Message
	}
	return msg
}

// classifyFailure maps a turn failure to an outcome and a user-facing text.
func classifyFailure(err error) (domain.TurnOutcome, string) {
	var cfgErr *domain.ConfigError
	var permErr *domain.PermanentError

	switch {
	case errors.Is(err, domain.ErrRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.TurnOutcomeTimeout, msgTimeout
	case errors.Is(err, context.Canceled):
		return domain.TurnOutcomeError, msgCancelled
	case errors.As(err, &cfgErr):
		return domain.TurnOutcomeError, msgNotConfigured
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return domain.TurnOutcomeError, msgUnavailable
	case errors.As(err, &permErr):
		return domain.TurnOutcomeError, msgRejected
	}
	return domain.TurnOutcomeError, msgUnexpected
}
