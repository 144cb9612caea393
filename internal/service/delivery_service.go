package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"wachannel/internal/composer"
	"wachannel/internal/dispatcher"
	"wachannel/internal/models"
	"wachannel/internal/queue"
)

const maxErrorReason = 512

// PayloadDispatcher sends a composed payload through the active provider
type PayloadDispatcher interface {
	Provider() string
	Dispatch(ctx context.Context, payload composer.Payload) (dispatcher.Result, error)
}

// EntryRecorder appends entries to the delivery ledger
type EntryRecorder interface {
	Record(ctx context.Context, entry *models.ChatLogEntry) error
}

// DeliveryService runs send jobs pulled off the queue
type DeliveryService struct {
	dispatcher PayloadDispatcher
	ledger     EntryRecorder
	logger     *zap.Logger
}

type deliveryMetadata struct {
	JobID     string `json:"job_id"`
	Provider  string `json:"provider"`
	RawStatus string `json:"raw_status,omitempty"`
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(d PayloadDispatcher, ledger EntryRecorder, logger *zap.Logger) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryService{dispatcher: d, ledger: ledger, logger: logger}
}

// Deliver dispatches one job and records the attempt as an OUTBOUND entry.
// A dispatch failure is recorded as FAILED and not returned, so the job is
// acknowledged. A ledger failure after a successful send is logged and
// swallowed; redelivering the job would message the contact twice.
func (s *DeliveryService) Deliver(ctx context.Context, job *queue.SendJob) error {
	payload := job.Payload
	preview := payload.Preview()

	entry := &models.ChatLogEntry{
		PhoneNumber: payload.To,
		Direction:   models.DirectionOutbound,
		MessageType: string(payload.Type),
		Content:     &preview,
		UserID:      job.UserID,
	}
	meta := deliveryMetadata{JobID: job.JobID.String(), Provider: s.dispatcher.Provider()}

	result, dispatchErr := s.dispatcher.Dispatch(ctx, payload)
	if dispatchErr != nil {
		failed := models.StatusFailed
		entry.Status = &failed
		entry.ErrorCode = dispatchErrorCode(dispatchErr)
		reason := truncateReason(dispatchErr.Error(), maxErrorReason)
		entry.ErrorReason = &reason
	} else {
		sent := models.StatusSent
		entry.Status = &sent
		entry.ProviderMessageID = &result.ProviderMessageID
		meta.Provider = result.Provider
		meta.RawStatus = result.RawStatus
	}

	if raw, err := json.Marshal(meta); err == nil {
		entry.Metadata = raw
	}

	if err := s.ledger.Record(ctx, entry); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.logger.Warn("send already recorded",
				zap.String("job_id", meta.JobID),
				zap.String("provider_message_id", result.ProviderMessageID),
			)
			return nil
		}
		if dispatchErr != nil {
			return err
		}
		s.logger.Error("message sent but not recorded",
			zap.String("job_id", meta.JobID),
			zap.String("provider_message_id", result.ProviderMessageID),
			zap.Error(err),
		)
		return nil
	}

	if dispatchErr != nil {
		s.logger.Warn("send job failed",
			zap.String("job_id", meta.JobID),
			zap.String("to", payload.To),
			zap.Error(dispatchErr),
		)
		return nil
	}

	s.logger.Info("message sent",
		zap.String("job_id", meta.JobID),
		zap.String("provider", result.Provider),
		zap.String("provider_message_id", result.ProviderMessageID),
	)
	return nil
}

func dispatchErrorCode(err error) *string {
	var code string
	var perr *dispatcher.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.As(err, &perr) && perr.StatusCode > 0:
		code = strconv.Itoa(perr.StatusCode)
	default:
		code = "dispatch_error"
	}
	return &code
}

// truncateReason cuts s to at most max bytes without splitting a rune
func truncateReason(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
