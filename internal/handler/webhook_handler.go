package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"wachannel/internal/models"
	"wachannel/internal/service"
	"wachannel/internal/webhook"
)

const maxWebhookBody = 4 << 20

// Ledger is the part of the delivery ledger the webhook writes to
type Ledger interface {
	Record(ctx context.Context, entry *models.ChatLogEntry) error
	ApplyStatus(ctx context.Context, event models.DeliveryStatusEvent) (models.ApplyOutcome, error)
}

// WebhookHandler receives Cloud API notifications
type WebhookHandler struct {
	ledger      Ledger
	appSecret   string
	verifyToken string
	logger      *zap.Logger
}

// WebhookResult summarises what one notification changed
type WebhookResult struct {
	Applied int `json:"applied"`
	Stale   int `json:"stale"`
	Unknown int `json:"unknown"`
	Inbound int `json:"inbound"`
	Skipped int `json:"skipped"`
}

// NewWebhookHandler creates a new WebhookHandler. An empty appSecret
// disables signature verification.
func NewWebhookHandler(ledger Ledger, appSecret, verifyToken string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		ledger:      ledger,
		appSecret:   appSecret,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Verify handles GET /webhooks/whatsapp - the subscription handshake
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("hub.mode") != "subscribe" || h.verifyToken == "" || query.Get("hub.verify_token") != h.verifyToken {
		WriteError(w, http.StatusForbidden, "FORBIDDEN", "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, query.Get("hub.challenge"))
}

// Receive handles POST /webhooks/whatsapp
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body")
		return
	}

	if h.appSecret != "" {
		if err := webhook.VerifySignature(body, r.Header.Get(webhook.SignatureHeader), h.appSecret); err != nil {
			WriteError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature does not match payload")
			return
		}
	}

	batch, err := webhook.Parse(body)
	if err != nil {
		WriteValidationError(w, err.Error())
		return
	}

	ctx := r.Context()
	result := WebhookResult{Skipped: batch.Skipped}

	for _, event := range batch.Statuses {
		outcome, err := h.ledger.ApplyStatus(ctx, event)
		if err != nil {
			HandleServiceError(w, err)
			return
		}
		switch outcome {
		case models.OutcomeApplied:
			result.Applied++
		case models.OutcomeStale:
			result.Stale++
		case models.OutcomeNotFound:
			result.Unknown++
		}
	}

	for _, entry := range batch.Messages {
		if err := h.ledger.Record(ctx, entry); err != nil {
			var conflict *service.ConflictError
			if errors.As(err, &conflict) {
				h.logger.Debug("inbound message already recorded", zap.Stringp("provider_message_id", entry.ProviderMessageID))
				continue
			}
			HandleServiceError(w, err)
			return
		}
		result.Inbound++
	}

	_ = WriteOK(w, result)
}
