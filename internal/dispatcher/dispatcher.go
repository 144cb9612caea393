package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wachannel/internal/composer"
)

// DefaultTimeout bounds a single dispatch when none is configured
const DefaultTimeout = 15 * time.Second

// Transport delivers a composed payload through one provider
type Transport interface {
	Name() string
	Send(ctx context.Context, payload composer.Payload) (Result, error)
}

// Result is the normalized acknowledgement of a successful send
type Result struct {
	ProviderMessageID string          `json:"provider_message_id"`
	RawStatus         string          `json:"raw_status"`
	Provider          string          `json:"provider"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// ProviderError carries the provider's diagnostic context around the
// underlying failure. StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Dispatcher sends payloads through a single transport chosen at startup.
// It never retries; the send queue owns redelivery.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
}

func New(transport Transport, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{transport: transport, timeout: timeout, logger: logger}
}

// Provider returns the name of the active transport
func (d *Dispatcher) Provider() string {
	return d.transport.Name()
}

// Dispatch sends payload once. Failures come back as *ProviderError.
func (d *Dispatcher) Dispatch(ctx context.Context, payload composer.Payload) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	provider := d.transport.Name()

	result, err := d.transport.Send(ctx, payload)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Provider: provider, Err: err}
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			perr.Err = fmt.Errorf("dispatch timed out after %s: %w", d.timeout, perr.Err)
		}

		d.logger.Error("dispatch failed",
			zap.String("provider", perr.Provider),
			zap.String("to", payload.To),
			zap.String("type", string(payload.Type)),
			zap.Int("status_code", perr.StatusCode),
			zap.String("body", perr.Body),
			zap.Duration("latency", time.Since(start)),
			zap.Error(perr.Err),
		)
		return Result{}, perr
	}

	if result.Provider == "" {
		result.Provider = provider
	}

	d.logger.Info("message dispatched",
		zap.String("provider", result.Provider),
		zap.String("to", payload.To),
		zap.String("provider_message_id", result.ProviderMessageID),
		zap.String("raw_status", result.RawStatus),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}
