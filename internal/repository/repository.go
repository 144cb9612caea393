package repository

import (
	"context"
	"database/sql"
	"errors"

	"wachannel/internal/models"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// ChatLogRepository defines ledger data access operations
type ChatLogRepository interface {
	Create(ctx context.Context, entry *models.ChatLogEntry) error
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.ChatLogEntry, error)
	ApplyStatus(ctx context.Context, event models.DeliveryStatusEvent) (models.ApplyOutcome, *models.DeliveryStatus, error)
	Search(ctx context.Context, filters models.ChatLogFilters) ([]*models.ChatLogEntry, error)
	CountByStatus(ctx context.Context, filters models.ChatLogFilters) (models.StatusCounts, error)
	FailureBreakdown(ctx context.Context, filters models.ChatLogFilters) ([]models.CommonError, error)
}

// DB is a wrapper around *sql.DB to allow passing in transaction
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
