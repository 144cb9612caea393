package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"wachannel/internal/flowcipher"
)

const maxFlowBody = 1 << 20

// FlowResponder produces the plaintext answer to a decrypted Flow request
type FlowResponder interface {
	Respond(ctx context.Context, request map[string]any) (any, error)
}

// FlowResponderFunc adapts a function to FlowResponder
type FlowResponderFunc func(ctx context.Context, request map[string]any) (any, error)

func (f FlowResponderFunc) Respond(ctx context.Context, request map[string]any) (any, error) {
	return f(ctx, request)
}

// DefaultFlowResponder answers health checks and error notifications and
// echoes the requested screen and data back otherwise.
var DefaultFlowResponder FlowResponder = FlowResponderFunc(func(_ context.Context, req map[string]any) (any, error) {
	if req["action"] == "ping" {
		return map[string]any{"data": map[string]any{"status": "active"}}, nil
	}
	if data, ok := req["data"].(map[string]any); ok {
		if _, isError := data["error"]; isError {
			return map[string]any{"data": map[string]any{"acknowledged": true}}, nil
		}
	}
	return map[string]any{"screen": req["screen"], "data": req["data"]}, nil
})

// FlowHandler serves the encrypted Flow data-exchange endpoint
type FlowHandler struct {
	privateKey []byte
	passphrase string
	responder  FlowResponder
	logger     *zap.Logger
}

// NewFlowHandler creates a new FlowHandler. A nil responder uses DefaultFlowResponder.
func NewFlowHandler(privateKeyPEM []byte, passphrase string, responder FlowResponder, logger *zap.Logger) *FlowHandler {
	if responder == nil {
		responder = DefaultFlowResponder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowHandler{
		privateKey: privateKeyPEM,
		passphrase: passphrase,
		responder:  responder,
		logger:     logger,
	}
}

// Exchange handles POST /flows/endpoint
func (h *FlowHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req flowcipher.EncryptedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFlowBody)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	decrypted, err := flowcipher.Decrypt(req, h.privateKey, h.passphrase)
	if err != nil {
		h.writeCipherError(w, err)
		return
	}

	response, err := h.responder.Respond(r.Context(), decrypted.Plaintext)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	body, err := flowcipher.Encrypt(response, decrypted.AESKey, decrypted.IV)
	if err != nil {
		h.writeCipherError(w, err)
		return
	}

	// The body is the bare base64 string, not JSON
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (h *FlowHandler) writeCipherError(w http.ResponseWriter, err error) {
	var ve *flowcipher.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteValidationError(w, ve.Error())
	case flowcipher.IsCryptoFailure(err):
		var ce *flowcipher.CryptoError
		errors.As(err, &ce)
		h.logger.Warn("flow request could not be decrypted", zap.String("stage", ce.Stage), zap.Error(ce.Err))
		WriteCryptoError(w)
	default:
		h.logger.Error("flow exchange failed", zap.Error(err))
		WriteInternalError(w)
	}
}
