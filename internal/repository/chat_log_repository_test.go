package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachannel/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.DeliveryStatus) *models.DeliveryStatus { return &s }

var entryColumns = []string{
	"id", "phone_number", "direction", "message_type", "content", "metadata",
	"provider_message_id", "status", "error_code", "error_reason", "user_id", "created_at", "updated_at",
}

func lockRows(id uuid.UUID, status interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), status)
}

var lockQuery = regexp.QuoteMeta("SELECT id, status") + `\s+FROM chat_logs\s+WHERE provider_message_id = \$1\s+FOR UPDATE`

func TestChatLogRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	now := time.Now().UTC()
	entry := &models.ChatLogEntry{
		PhoneNumber:       "+2348012345678",
		Direction:         models.DirectionOutbound,
		MessageType:       "text",
		Content:           strPtr("Rent reminder"),
		Metadata:          []byte(`{"provider":"simulated"}`),
		ProviderMessageID: strPtr("wamid.1"),
		Status:            statusPtr(models.StatusSent),
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_logs")).
		WithArgs(sqlmock.AnyArg(), "+2348012345678", "OUTBOUND", "text", "Rent reminder",
			`{"provider":"simulated"}`, "wamid.1", "SENT", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, now, entry.CreatedAt)
}

func TestChatLogRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_logs")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &models.ChatLogEntry{
		PhoneNumber:       "+2348012345678",
		Direction:         models.DirectionOutbound,
		MessageType:       "text",
		ProviderMessageID: strPtr("wamid.1"),
		Status:            statusPtr(models.StatusSent),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestChatLogRepository_ApplyStatusAdvances(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.1").WillReturnRows(lockRows(id, "SENT"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_logs")).
		WithArgs("DELIVERED", nil, nil, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, status, err := repo.ApplyStatus(context.Background(), models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.1",
		Status:            models.StatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)
	assert.Equal(t, models.StatusDelivered, *status)
}

func TestChatLogRepository_ApplyStatusNoRegression(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.1").WillReturnRows(lockRows(id, "DELIVERED"))
	mock.ExpectRollback()

	outcome, status, err := repo.ApplyStatus(context.Background(), models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.1",
		Status:            models.StatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)
	assert.Equal(t, models.StatusDelivered, *status)
}

func TestChatLogRepository_ApplyStatusFailedThenDelivered(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)
	id := uuid.New()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.1").WillReturnRows(lockRows(id, "SENT"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_logs")).
		WithArgs("FAILED", "131026", "Phone number not on WhatsApp", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.1").WillReturnRows(lockRows(id, "FAILED"))
	mock.ExpectRollback()

	outcome, _, err := repo.ApplyStatus(ctx, models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.1",
		Status:            models.StatusFailed,
		ErrorCode:         strPtr("131026"),
		ErrorReason:       strPtr("Phone number not on WhatsApp"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)

	outcome, status, err := repo.ApplyStatus(ctx, models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.1",
		Status:            models.StatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)
	assert.Equal(t, models.StatusFailed, *status)
}

func TestChatLogRepository_ApplyStatusInboundRowNeverMoves(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.in").WillReturnRows(lockRows(uuid.New(), nil))
	mock.ExpectRollback()

	outcome, status, err := repo.ApplyStatus(context.Background(), models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.in",
		Status:            models.StatusRead,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)
	assert.Nil(t, status)
}

func TestChatLogRepository_ApplyStatusNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("wamid.other").WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectRollback()

	outcome, _, err := repo.ApplyStatus(context.Background(), models.DeliveryStatusEvent{
		ProviderMessageID: "wamid.other",
		Status:            models.StatusRead,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotFound, outcome)
}

func TestChatLogRepository_Search(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	phone := "+2348012345678"
	dir := models.DirectionOutbound
	content := "50%_off"
	after := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	created := after.Add(time.Hour)
	userID := uuid.New()

	rows := sqlmock.NewRows(entryColumns).
		AddRow(uuid.New().String(), phone, "OUTBOUND", "text", "Get 50%_off rent", nil, "wamid.1", "READ", nil, nil, userID.String(), created, created).
		AddRow(uuid.New().String(), phone, "OUTBOUND", "template", nil, []byte(`{"template":"x"}`), "wamid.2", "FAILED", "131026", "Phone number not on WhatsApp", nil, created, created)

	mock.ExpectQuery(
		`(?s)` + regexp.QuoteMeta("AND phone_number = $1 AND direction = $2") +
			`.*` + regexp.QuoteMeta(`AND content ILIKE '%' || $3 || '%' ESCAPE '\'`) +
			`.*` + regexp.QuoteMeta("AND created_at >= $4 ORDER BY created_at ASC, id ASC LIMIT $5"),
	).
		WithArgs(phone, "OUTBOUND", `50\%\_off`, after, 10).
		WillReturnRows(rows)

	entries, err := repo.Search(context.Background(), models.ChatLogFilters{
		PhoneNumber:  &phone,
		Direction:    &dir,
		Content:      &content,
		CreatedAfter: &after,
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Get 50%_off rent", *entries[0].Content)
	assert.Equal(t, models.StatusRead, *entries[0].Status)
	assert.Equal(t, userID, *entries[0].UserID)
	assert.Nil(t, entries[0].Metadata)

	assert.Nil(t, entries[1].Content)
	assert.JSONEq(t, `{"template":"x"}`, string(entries[1].Metadata))
	assert.Equal(t, "131026", *entries[1].ErrorCode)
	assert.Nil(t, entries[1].UserID)
}

func TestChatLogRepository_SearchEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM chat_logs WHERE 1=1 ORDER BY created_at ASC, id ASC")).
		WillReturnRows(sqlmock.NewRows(entryColumns))

	entries, err := repo.Search(context.Background(), models.ChatLogFilters{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestChatLogRepository_CountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)
	dir := models.DirectionOutbound

	mock.ExpectQuery(`(?s)` + regexp.QuoteMeta("COUNT(*) FILTER (WHERE status = 'READ')") + `.*` + regexp.QuoteMeta("AND direction = $1")).
		WithArgs("OUTBOUND").
		WillReturnRows(sqlmock.NewRows([]string{"total", "sent", "delivered", "read", "failed"}).AddRow(3, 0, 1, 1, 1))

	counts, err := repo.CountByStatus(context.Background(), models.ChatLogFilters{Direction: &dir})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCounts{Total: 3, Delivered: 1, Read: 1, Failed: 1}, counts)
}

func TestChatLogRepository_FailureBreakdown(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatLogRepository(db)
	dir := models.DirectionOutbound

	mock.ExpectQuery(`(?s)` + regexp.QuoteMeta("WHERE status = 'FAILED' AND direction = $1") + `.*` + regexp.QuoteMeta("ORDER BY COUNT(*) DESC, 1 ASC, 2 ASC")).
		WithArgs("OUTBOUND").
		WillReturnRows(sqlmock.NewRows([]string{"code", "reason", "count"}).
			AddRow("131026", "Phone number not on WhatsApp", 2).
			AddRow("131047", "Re-engagement message", 1))

	out, err := repo.FailureBreakdown(context.Background(), models.ChatLogFilters{Direction: &dir})
	require.NoError(t, err)
	assert.Equal(t, []models.CommonError{
		{Code: "131026", Reason: "Phone number not on WhatsApp", Count: 2},
		{Code: "131047", Reason: "Re-engagement message", Count: 1},
	}, out)
}
