package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a message was sent to or received from a contact
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// DeliveryStatus is the provider-reported state of an outbound message
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
	StatusFailed    DeliveryStatus = "FAILED"
)

// NormalizePhone reduces a contact number to the E.164 form the ledger is
// keyed on: a leading "+" followed by digits. Provider prefixes such as
// "whatsapp:" and formatting characters are dropped.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "whatsapp:")

	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(phone, "+") && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	return "+" + digits
}

// ChatLogEntry is one message attempt, inbound or outbound.
// Rows are append-only; only delivery reconciliation mutates them.
type ChatLogEntry struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	PhoneNumber       string          `json:"phone_number" db:"phone_number"`
	Direction         Direction       `json:"direction" db:"direction"`
	MessageType       string          `json:"message_type" db:"message_type"`
	Content           *string         `json:"content,omitempty" db:"content"`
	Metadata          json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	ProviderMessageID *string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            *DeliveryStatus `json:"status,omitempty" db:"status"`
	ErrorCode         *string         `json:"error_code,omitempty" db:"error_code"`
	ErrorReason       *string         `json:"error_reason,omitempty" db:"error_reason"`
	UserID            *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate checks if the entry fields are valid
func (e *ChatLogEntry) Validate() error {
	if strings.TrimSpace(e.PhoneNumber) == "" {
		return fmt.Errorf("phone number is required")
	}
	if e.Direction != DirectionInbound && e.Direction != DirectionOutbound {
		return fmt.Errorf("invalid direction: must be 'INBOUND' or 'OUTBOUND'")
	}
	if e.MessageType == "" {
		return fmt.Errorf("message type is required")
	}
	if e.Direction == DirectionInbound && e.Status != nil {
		return fmt.Errorf("inbound entries carry no delivery status")
	}
	if e.Status != nil && !e.Status.Valid() {
		return fmt.Errorf("invalid status: %s", *e.Status)
	}
	return nil
}

// DeliveryStatusEvent is a provider webhook notification about one message
type DeliveryStatusEvent struct {
	ProviderMessageID string         `json:"provider_message_id"`
	Status            DeliveryStatus `json:"status"`
	Timestamp         time.Time      `json:"timestamp"`
	ErrorCode         *string        `json:"error_code,omitempty"`
	ErrorReason       *string        `json:"error_reason,omitempty"`
}

// ChatLogFilters narrows ledger searches and statistics.
// Nil fields are not applied.
type ChatLogFilters struct {
	PhoneNumber   *string
	Direction     *Direction
	Status        *DeliveryStatus
	Content       *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// CommonError is one distinct failure reason among FAILED messages
type CommonError struct {
	Code       string  `json:"code"`
	Reason     string  `json:"reason"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DeliveryStats is the analytics view of a set of outbound messages
type DeliveryStats struct {
	Total        int           `json:"total"`
	Sent         int           `json:"sent"`
	Delivered    int           `json:"delivered"`
	Read         int           `json:"read"`
	Failed       int           `json:"failed"`
	DeliveryRate float64       `json:"delivery_rate"`
	ReadRate     float64       `json:"read_rate"`
	CommonErrors []CommonError `json:"common_errors"`
}

// StatusCounts are per-status totals for a set of outbound messages
type StatusCounts struct {
	Total     int
	Sent      int
	Delivered int
	Read      int
	Failed    int
}
