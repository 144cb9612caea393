package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wachannel/internal/composer"
	"wachannel/internal/queue"
)

// Send request kinds
const (
	KindText     = "text"
	KindButtons  = "buttons"
	KindList     = "list"
	KindTemplate = "template"
)

// JobPublisher enqueues send jobs for the worker
type JobPublisher interface {
	PublishSend(ctx context.Context, job *queue.SendJob) error
}

// SendRequest represents the request to send one WhatsApp message
type SendRequest struct {
	Type       string             `json:"type"`
	To         string             `json:"to"`
	Body       string             `json:"body,omitempty"`
	Buttons    []composer.Button  `json:"buttons,omitempty"`
	ButtonText string             `json:"button_text,omitempty"`
	Sections   []composer.Section `json:"sections,omitempty"`
	Template   *TemplateRequest   `json:"template,omitempty"`
	UserID     *uuid.UUID         `json:"user_id,omitempty"`
}

// TemplateRequest names an approved template and its parameters
type TemplateRequest struct {
	Name          string               `json:"name"`
	Language      string               `json:"language,omitempty"`
	Components    []composer.Component `json:"components,omitempty"`
	ButtonPayload *ButtonPayload       `json:"button_payload,omitempty"`
}

// ButtonPayload overrides the payload of a quick-reply button by position
type ButtonPayload struct {
	Index   int    `json:"index"`
	Payload string `json:"payload"`
}

// SendAccepted is returned once a job is on the queue
type SendAccepted struct {
	JobID   uuid.UUID        `json:"job_id"`
	Status  string           `json:"status"`
	Payload composer.Payload `json:"payload"`
}

// MessagingService composes outbound messages and hands them to the worker
type MessagingService struct {
	publisher JobPublisher
	logger    *zap.Logger
}

// NewMessagingService creates a new messaging service
func NewMessagingService(publisher JobPublisher, logger *zap.Logger) *MessagingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingService{publisher: publisher, logger: logger}
}

// Compose builds the Cloud API payload for req without sending it
func (s *MessagingService) Compose(req *SendRequest) (composer.Payload, error) {
	var (
		payload composer.Payload
		err     error
	)

	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case KindText, "":
		payload, err = composer.Text(req.To, req.Body)
	case KindButtons:
		payload, err = composer.Buttons(req.To, req.Body, req.Buttons)
	case KindList:
		payload, err = composer.List(req.To, req.Body, req.ButtonText, req.Sections)
	case KindTemplate:
		if req.Template == nil {
			return composer.Payload{}, &ValidationError{Message: "template is required for template messages"}
		}
		payload, err = composer.Template(req.To, req.Template.Name, req.Template.Language, req.Template.Components)
		if err == nil && req.Template.ButtonPayload != nil {
			payload, err = payload.WithButtonPayload(req.Template.ButtonPayload.Index, req.Template.ButtonPayload.Payload)
		}
	default:
		return composer.Payload{}, &ValidationError{Message: fmt.Sprintf("unsupported message type %q", req.Type)}
	}

	if err != nil {
		var ve *composer.ValidationError
		if errors.As(err, &ve) {
			return composer.Payload{}, &ValidationError{Message: ve.Error()}
		}
		return composer.Payload{}, err
	}

	return payload, nil
}

// Send composes req and enqueues it for dispatch
func (s *MessagingService) Send(ctx context.Context, req *SendRequest) (*SendAccepted, error) {
	payload, err := s.Compose(req)
	if err != nil {
		return nil, err
	}

	job := &queue.SendJob{
		JobID:       uuid.New(),
		Payload:     payload,
		UserID:      req.UserID,
		RequestedAt: time.Now().UTC(),
	}

	if err := s.publisher.PublishSend(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue send job: %w", err)
	}

	s.logger.Info("send job enqueued",
		zap.String("job_id", job.JobID.String()),
		zap.String("to", payload.To),
		zap.String("type", string(payload.Type)),
	)

	return &SendAccepted{JobID: job.JobID, Status: "queued", Payload: payload}, nil
}
