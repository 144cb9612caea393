package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachannel/internal/composer"
	"wachannel/internal/models"
	"wachannel/internal/service"
)

type fakeReader struct {
	filters models.ChatLogFilters
	entries []*models.ChatLogEntry
	stats   *models.DeliveryStats
	err     error
}

func (f *fakeReader) Search(_ context.Context, filters models.ChatLogFilters) ([]*models.ChatLogEntry, error) {
	f.filters = filters
	return f.entries, f.err
}

func (f *fakeReader) GetByProviderMessageID(_ context.Context, id string) (*models.ChatLogEntry, error) {
	for _, e := range f.entries {
		if e.ProviderMessageID != nil && *e.ProviderMessageID == id {
			return e, nil
		}
	}
	return nil, &service.NotFoundError{Resource: service.ResourceChatLog, Field: "provider_message_id", Value: id}
}

func (f *fakeReader) DeliveryStatistics(_ context.Context, filters models.ChatLogFilters) (*models.DeliveryStats, error) {
	f.filters = filters
	return f.stats, f.err
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestChatLogHandler_ListFilters(t *testing.T) {
	content := "rent"
	reader := &fakeReader{entries: []*models.ChatLogEntry{{
		ID:          uuid.New(),
		PhoneNumber: "+2348012345678",
		Direction:   models.DirectionOutbound,
		MessageType: "text",
		Content:     &content,
	}}}
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(reader)})

	rec := get(router, "/api/v1/chat-logs?phone_number=%2B2348012345678&direction=outbound&status=delivered"+
		"&content=rent&created_after=2024-01-01T00:00:00Z&created_before=2024-02-01T00:00:00Z&limit=20&offset=40")

	require.Equal(t, http.StatusOK, rec.Code)
	f := reader.filters
	assert.Equal(t, "+2348012345678", *f.PhoneNumber)
	assert.Equal(t, models.DirectionOutbound, *f.Direction)
	assert.Equal(t, models.StatusDelivered, *f.Status)
	assert.Equal(t, "rent", *f.Content)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.CreatedAfter)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *f.CreatedBefore)
	assert.Equal(t, 20, f.Limit)
	assert.Equal(t, 40, f.Offset)

	var resp ListChatLogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestChatLogHandler_UnescapedOffset(t *testing.T) {
	reader := &fakeReader{}
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(reader)})

	rec := get(router, "/api/v1/chat-logs?created_after=2024-01-01T09:00:00+01:00&created_before=2024-01-02T09:00:00%2B01:00")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reader.filters.CreatedAfter.Equal(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, reader.filters.CreatedBefore.Equal(time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)))
}

func TestChatLogHandler_GetByProviderMessageID(t *testing.T) {
	id := "wamid.HBgM"
	reader := &fakeReader{entries: []*models.ChatLogEntry{{
		ID:                uuid.New(),
		PhoneNumber:       "+2348012345678",
		Direction:         models.DirectionOutbound,
		MessageType:       "text",
		ProviderMessageID: &id,
	}}}
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(reader)})

	rec := get(router, "/api/v1/chat-logs/wamid.HBgM")
	require.Equal(t, http.StatusOK, rec.Code)
	var entry models.ChatLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, id, *entry.ProviderMessageID)

	rec = get(router, "/api/v1/chat-logs/wamid.missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RESOURCE_NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "wamid.missing")
}

func TestChatLogHandler_InvalidQuery(t *testing.T) {
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(&fakeReader{})})

	for _, q := range []string{
		"direction=sideways",
		"status=bounced",
		"created_after=yesterday",
		"limit=-1",
		"offset=abc",
	} {
		rec := get(router, "/api/v1/chat-logs?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestChatLogHandler_Statistics(t *testing.T) {
	reader := &fakeReader{stats: &models.DeliveryStats{
		Total: 3, Delivered: 1, Read: 1, Failed: 1,
		DeliveryRate: 66.67, ReadRate: 33.33,
		CommonErrors: []models.CommonError{{Code: "131026", Reason: "Phone number not on WhatsApp", Count: 1, Percentage: 100}},
	}}
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(reader)})

	rec := get(router, "/api/v1/chat-logs/statistics?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, reader.filters.Limit)
	assert.JSONEq(t, `{
		"total": 3, "sent": 0, "delivered": 1, "read": 1, "failed": 1,
		"delivery_rate": 66.67, "read_rate": 33.33,
		"common_errors": [{"code": "131026", "reason": "Phone number not on WhatsApp", "count": 1, "percentage": 100}]
	}`, rec.Body.String())
}

func TestChatLogHandler_StatisticsBusinessError(t *testing.T) {
	reader := &fakeReader{err: &service.BusinessLogicError{Message: "delivery statistics only cover outbound messages"}}
	router := NewRouter(Routes{ChatLogs: NewChatLogHandler(reader)})

	rec := get(router, "/api/v1/chat-logs/statistics?direction=inbound")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BUSINESS_LOGIC_ERROR")
}

type fakeSender struct {
	req *service.SendRequest
	err error
}

func (f *fakeSender) Send(_ context.Context, req *service.SendRequest) (*service.SendAccepted, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	p, _ := composer.Text(req.To, req.Body)
	return &service.SendAccepted{JobID: uuid.New(), Status: "queued", Payload: p}, nil
}

func TestMessageHandler_Send(t *testing.T) {
	sender := &fakeSender{}
	router := NewRouter(Routes{Messages: NewMessageHandler(sender)})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/messages",
		strings.NewReader(`{"type":"text","to":"+2348012345678","body":"Your rent is due on Friday"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "+2348012345678", sender.req.To)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)
}

func TestMessageHandler_Errors(t *testing.T) {
	sender := &fakeSender{err: &service.ValidationError{Message: "invalid to: recipient is required"}}
	router := NewRouter(Routes{Messages: NewMessageHandler(sender)})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"type":"text"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(``)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request body is empty")
}

type fakeHealth struct{ status string }

func (f fakeHealth) CheckHealth(context.Context) (*service.HealthStatus, error) {
	return &service.HealthStatus{Status: f.status, Services: map[string]string{"database": service.StatusConnected}}, nil
}

func TestHealthHandler(t *testing.T) {
	rec := get(NewRouter(Routes{Health: NewHealthHandler(fakeHealth{status: service.StatusHealthy})}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(NewRouter(Routes{Health: NewHealthHandler(fakeHealth{status: service.StatusDegraded})}), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
