package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"wachannel/internal/models"
)

const uniqueViolation = "23505"

const chatLogColumns = `id, phone_number, direction, message_type, content, metadata,
		provider_message_id, status, error_code, error_reason, user_id, created_at, updated_at`

type chatLogRepository struct {
	db *sql.DB
}

// NewChatLogRepository creates a new chat log repository
func NewChatLogRepository(db *sql.DB) ChatLogRepository {
	return &chatLogRepository{db: db}
}

// Create appends a ledger entry
func (r *chatLogRepository) Create(ctx context.Context, entry *models.ChatLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO chat_logs (id, phone_number, direction, message_type, content, metadata,
			provider_message_id, status, error_code, error_reason, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		entry.ID,
		entry.PhoneNumber,
		entry.Direction,
		entry.MessageType,
		entry.Content,
		nullableJSON(entry.Metadata),
		entry.ProviderMessageID,
		entry.Status,
		entry.ErrorCode,
		entry.ErrorReason,
		entry.UserID,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: provider message id already recorded", ErrDuplicate)
		}
		return fmt.Errorf("failed to create chat log: %w", err)
	}

	return nil
}

// GetByProviderMessageID retrieves an entry by the provider's message id
func (r *chatLogRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.ChatLogEntry, error) {
	query := `SELECT ` + chatLogColumns + ` FROM chat_logs WHERE provider_message_id = $1`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, providerMessageID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat log: %w", err)
	}

	return entry, nil
}

// ApplyStatus advances the status of the entry matching the event along the
// lattice. The row is locked for the duration of the check so concurrent
// webhooks for the same message are evaluated one after another.
func (r *chatLogRepository) ApplyStatus(ctx context.Context, event models.DeliveryStatusEvent) (models.ApplyOutcome, *models.DeliveryStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id      uuid.UUID
		current *models.DeliveryStatus
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, status
		FROM chat_logs
		WHERE provider_message_id = $1
		FOR UPDATE
	`, event.ProviderMessageID).Scan(&id, &current)

	if err == sql.ErrNoRows {
		return models.OutcomeNotFound, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to lock chat log: %w", err)
	}

	if !models.CanTransition(current, event.Status) {
		return models.OutcomeStale, current, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE chat_logs
		SET status = $1,
			error_code = COALESCE($2, error_code),
			error_reason = COALESCE($3, error_reason),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`, event.Status, event.ErrorCode, event.ErrorReason, id)
	if err != nil {
		return "", nil, fmt.Errorf("failed to update chat log status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	next := event.Status
	return models.OutcomeApplied, &next, nil
}

// Search lists entries matching filters, oldest first
func (r *chatLogRepository) Search(ctx context.Context, filters models.ChatLogFilters) ([]*models.ChatLogEntry, error) {
	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT ` + chatLogColumns + ` FROM chat_logs WHERE 1=1`)

	where, args := buildFilters(filters)
	queryBuilder.WriteString(where)
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	argPos := len(args) + 1
	if filters.Limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argPos))
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argPos))
		args = append(args, filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chat logs: %w", err)
	}
	defer rows.Close()

	entries := []*models.ChatLogEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat logs: %w", err)
	}

	return entries, nil
}

// CountByStatus returns per-status totals for entries matching filters
func (r *chatLogRepository) CountByStatus(ctx context.Context, filters models.ChatLogFilters) (models.StatusCounts, error) {
	where, args := buildFilters(filters)
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'SENT') AS sent,
			COUNT(*) FILTER (WHERE status = 'DELIVERED') AS delivered,
			COUNT(*) FILTER (WHERE status = 'READ') AS read,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed
		FROM chat_logs
		WHERE 1=1` + where

	var c models.StatusCounts
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.Total, &c.Sent, &c.Delivered, &c.Read, &c.Failed)
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("failed to count chat logs: %w", err)
	}

	return c, nil
}

// FailureBreakdown groups FAILED entries by error code and reason, most
// frequent first. Percentages are left for the caller.
func (r *chatLogRepository) FailureBreakdown(ctx context.Context, filters models.ChatLogFilters) ([]models.CommonError, error) {
	where, args := buildFilters(filters)
	query := `
		SELECT COALESCE(error_code, ''), COALESCE(error_reason, ''), COUNT(*)
		FROM chat_logs
		WHERE status = 'FAILED'` + where + `
		GROUP BY 1, 2
		ORDER BY COUNT(*) DESC, 1 ASC, 2 ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group chat log failures: %w", err)
	}
	defer rows.Close()

	out := []models.CommonError{}
	for rows.Next() {
		var ce models.CommonError
		if err := rows.Scan(&ce.Code, &ce.Reason, &ce.Count); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		out = append(out, ce)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure rows: %w", err)
	}

	return out, nil
}

// buildFilters renders the optional filters as AND clauses with $n
// placeholders starting at 1.
func buildFilters(filters models.ChatLogFilters) (string, []interface{}) {
	var b strings.Builder
	args := []interface{}{}
	argPos := 1

	add := func(clause string, value interface{}) {
		b.WriteString(fmt.Sprintf(clause, argPos))
		args = append(args, value)
		argPos++
	}

	if filters.PhoneNumber != nil {
		add(" AND phone_number = $%d", *filters.PhoneNumber)
	}
	if filters.Direction != nil {
		add(" AND direction = $%d", string(*filters.Direction))
	}
	if filters.Status != nil {
		add(" AND status = $%d", string(*filters.Status))
	}
	if filters.Content != nil && *filters.Content != "" {
		add(` AND content ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(*filters.Content))
	}
	if filters.CreatedAfter != nil {
		add(" AND created_at >= $%d", *filters.CreatedAfter)
	}
	if filters.CreatedBefore != nil {
		add(" AND created_at <= $%d", *filters.CreatedBefore)
	}

	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.ChatLogEntry, error) {
	entry := &models.ChatLogEntry{}
	var metadata []byte
	err := row.Scan(
		&entry.ID,
		&entry.PhoneNumber,
		&entry.Direction,
		&entry.MessageType,
		&entry.Content,
		&metadata,
		&entry.ProviderMessageID,
		&entry.Status,
		&entry.ErrorCode,
		&entry.ErrorReason,
		&entry.UserID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}
	return entry, nil
}
