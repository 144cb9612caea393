package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"wachannel/internal/models"
	"wachannel/internal/repository"
)

// MaxSearchLimit caps a single ledger page
const MaxSearchLimit = 500

// LedgerService records message attempts and reconciles delivery webhooks
type LedgerService struct {
	repo   repository.ChatLogRepository
	logger *zap.Logger
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(repo repository.ChatLogRepository, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, logger: logger}
}

// Record appends an entry. Outbound entries start at SENT unless the
// caller already knows better (e.g. FAILED at dispatch); inbound entries
// carry no status.
func (s *LedgerService) Record(ctx context.Context, entry *models.ChatLogEntry) error {
	entry.PhoneNumber = models.NormalizePhone(entry.PhoneNumber)
	if entry.Direction == models.DirectionOutbound && entry.Status == nil {
		sent := models.StatusSent
		entry.Status = &sent
	}
	if entry.ProviderMessageID != nil && *entry.ProviderMessageID == "" {
		entry.ProviderMessageID = nil
	}

	if err := entry.Validate(); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return &ConflictError{Resource: ResourceChatLog, Message: "provider message id already recorded"}
		}
		return err
	}

	return nil
}

// ApplyStatus reconciles one delivery webhook. Stale and unknown messages
// are not errors.
func (s *LedgerService) ApplyStatus(ctx context.Context, event models.DeliveryStatusEvent) (models.ApplyOutcome, error) {
	if strings.TrimSpace(event.ProviderMessageID) == "" {
		return "", &ValidationError{Message: "provider message id is required"}
	}
	if !event.Status.Valid() {
		return "", &ValidationError{Message: "invalid status: " + string(event.Status)}
	}

	outcome, current, err := s.repo.ApplyStatus(ctx, event)
	if err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.String("provider_message_id", event.ProviderMessageID),
		zap.String("status", string(event.Status)),
	}

	switch outcome {
	case models.OutcomeApplied:
		s.logger.Info("delivery status applied", fields...)
	case models.OutcomeStale:
		if current != nil {
			fields = append(fields, zap.String("current_status", string(*current)))
		}
		s.logger.Debug("stale delivery status discarded", fields...)
	case models.OutcomeNotFound:
		s.logger.Warn("delivery status for unknown message ignored", fields...)
	}

	return outcome, nil
}

// GetByProviderMessageID returns the entry a provider message id was recorded under
func (s *LedgerService) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.ChatLogEntry, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return nil, &ValidationError{Message: "provider message id is required"}
	}

	entry, err := s.repo.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: ResourceChatLog, Field: "provider_message_id", Value: providerMessageID}
		}
		return nil, err
	}
	return entry, nil
}

// Search lists ledger entries matching filters, oldest first
func (s *LedgerService) Search(ctx context.Context, filters models.ChatLogFilters) ([]*models.ChatLogEntry, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	filters = normalizeFilters(filters)
	if filters.Limit > MaxSearchLimit {
		filters.Limit = MaxSearchLimit
	}

	return s.repo.Search(ctx, filters)
}

// DeliveryStatistics computes delivery and read rates over the outbound
// entries matching filters.
func (s *LedgerService) DeliveryStatistics(ctx context.Context, filters models.ChatLogFilters) (*models.DeliveryStats, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	filters = normalizeFilters(filters)
	if filters.Direction != nil && *filters.Direction != models.DirectionOutbound {
		return nil, &BusinessLogicError{Message: "delivery statistics only cover outbound messages"}
	}

	outbound := models.DirectionOutbound
	filters.Direction = &outbound
	filters.Limit, filters.Offset = 0, 0

	counts, err := s.repo.CountByStatus(ctx, filters)
	if err != nil {
		return nil, err
	}

	stats := &models.DeliveryStats{
		Total:        counts.Total,
		Sent:         counts.Sent,
		Delivered:    counts.Delivered,
		Read:         counts.Read,
		Failed:       counts.Failed,
		CommonErrors: []models.CommonError{},
	}
	if counts.Total == 0 {
		return stats, nil
	}

	stats.DeliveryRate = percentage(counts.Delivered+counts.Read, counts.Total)
	stats.ReadRate = percentage(counts.Read, counts.Total)

	if counts.Failed == 0 {
		return stats, nil
	}

	breakdown, err := s.repo.FailureBreakdown(ctx, filters)
	if err != nil {
		return nil, err
	}
	for i := range breakdown {
		breakdown[i].Percentage = percentage(breakdown[i].Count, counts.Failed)
	}
	stats.CommonErrors = breakdown

	return stats, nil
}

func validateFilters(f models.ChatLogFilters) error {
	if f.Limit < 0 || f.Offset < 0 {
		return &ValidationError{Message: "limit and offset must be non-negative"}
	}
	if f.Status != nil && !f.Status.Valid() {
		return &ValidationError{Message: "invalid status: " + string(*f.Status)}
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedAfter.After(*f.CreatedBefore) {
		return &ValidationError{Message: "created_after must not be later than created_before"}
	}
	return nil
}

// normalizeFilters keys a phone filter the same way Record stores numbers
func normalizeFilters(f models.ChatLogFilters) models.ChatLogFilters {
	if f.PhoneNumber != nil {
		phone := models.NormalizePhone(*f.PhoneNumber)
		f.PhoneNumber = &phone
	}
	return f
}

// percentage returns part/total*100 rounded to two decimals
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
