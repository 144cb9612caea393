package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"wachannel/internal/service"
)

// MessageSender composes and enqueues outbound messages
type MessageSender interface {
	Send(ctx context.Context, req *service.SendRequest) (*service.SendAccepted, error)
}

// MessageHandler handles HTTP requests for outbound messages
type MessageHandler struct {
	messagingService MessageSender
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messagingService MessageSender) *MessageHandler {
	return &MessageHandler{
		messagingService: messagingService,
	}
}

// Send handles POST /api/v1/messages - composes a message and queues it
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
			return
		}
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	accepted, err := h.messagingService.Send(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteAccepted(w, accepted)
}
