package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"wachannel/internal/models"
)

// LedgerReader serves ledger searches and analytics
type LedgerReader interface {
	Search(ctx context.Context, filters models.ChatLogFilters) ([]*models.ChatLogEntry, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.ChatLogEntry, error)
	DeliveryStatistics(ctx context.Context, filters models.ChatLogFilters) (*models.DeliveryStats, error)
}

// ChatLogHandler handles HTTP requests for the delivery ledger
type ChatLogHandler struct {
	ledger LedgerReader
}

// ListChatLogsResponse represents the response for listing chat logs
type ListChatLogsResponse struct {
	ChatLogs []*models.ChatLogEntry `json:"chat_logs"`
	Count    int                    `json:"count"`
}

// NewChatLogHandler creates a new chat log handler
func NewChatLogHandler(ledger LedgerReader) *ChatLogHandler {
	return &ChatLogHandler{ledger: ledger}
}

// List handles GET /api/v1/chat-logs
func (h *ChatLogHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, msg := parseChatLogFilters(r.URL.Query(), true)
	if msg != "" {
		WriteValidationError(w, msg)
		return
	}

	entries, err := h.ledger.Search(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListChatLogsResponse{ChatLogs: entries, Count: len(entries)})
}

// Get handles GET /api/v1/chat-logs/{provider_message_id}
func (h *ChatLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.GetByProviderMessageID(r.Context(), mux.Vars(r)["provider_message_id"])
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, entry)
}

// Statistics handles GET /api/v1/chat-logs/statistics
func (h *ChatLogHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	filters, msg := parseChatLogFilters(r.URL.Query(), false)
	if msg != "" {
		WriteValidationError(w, msg)
		return
	}

	stats, err := h.ledger.DeliveryStatistics(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, stats)
}

// parseChatLogFilters reads filters from the query string and returns a
// validation message when a value cannot be parsed.
func parseChatLogFilters(query url.Values, paginated bool) (models.ChatLogFilters, string) {
	var filters models.ChatLogFilters

	if phone := query.Get("phone_number"); phone != "" {
		filters.PhoneNumber = &phone
	}
	if content := query.Get("content"); content != "" {
		filters.Content = &content
	}

	if raw := query.Get("direction"); raw != "" {
		direction, err := models.ParseDirection(raw)
		if err != nil {
			return filters, "invalid direction: must be 'inbound' or 'outbound'"
		}
		filters.Direction = &direction
	}

	if raw := query.Get("status"); raw != "" {
		status, err := models.ParseDeliveryStatus(raw)
		if err != nil {
			return filters, "invalid status: must be one of sent, delivered, read, failed"
		}
		filters.Status = &status
	}

	for _, p := range []struct {
		key string
		dst **time.Time
	}{
		{"created_after", &filters.CreatedAfter},
		{"created_before", &filters.CreatedBefore},
	} {
		raw := query.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := parseTimestamp(raw)
		if err != nil {
			return filters, p.key + " must be a URL-encoded RFC3339 timestamp"
		}
		*p.dst = &t
	}

	if !paginated {
		return filters, ""
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filters, "limit must be a non-negative integer"
		}
		filters.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filters, "offset must be a non-negative integer"
		}
		filters.Offset = offset
	}

	return filters, ""
}

// parseTimestamp reads an RFC3339 value. An unescaped "+01:00" offset
// arrives with a space in place of the plus sign.
func parseTimestamp(raw string) (time.Time, error) {
	if i := strings.LastIndex(raw, " "); i > 0 {
		raw = raw[:i] + "+" + raw[i+1:]
	}
	return time.Parse(time.RFC3339, raw)
}
