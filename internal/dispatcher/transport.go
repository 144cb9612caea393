package dispatcher

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"wachannel/internal/config"
	"wachannel/internal/simulator"
)

// Deps are the collaborators a transport may need
type Deps struct {
	Publisher  simulator.Publisher
	Identities simulator.IdentityLookup
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewTransport picks the single transport for this process.
// WHATSAPP_SIMULATE wins over WHATSAPP_PROVIDER.
func NewTransport(cfg config.WhatsAppConfig, deps Deps) (Transport, error) {
	if cfg.Simulate {
		if deps.Publisher == nil {
			return nil, errors.New("simulation mode requires a simulator publisher")
		}
		return NewSimulatedTransport(deps.Publisher, deps.Identities), nil
	}

	switch cfg.Provider {
	case config.ProviderGraph:
		return NewGraphTransport(cfg.Graph, deps.HTTPClient), nil
	case config.ProviderTwilio:
		return NewTwilioTransport(cfg.Twilio, deps.Logger), nil
	case config.ProviderSendchamp:
		return NewSendchampTransport(cfg.Sendchamp, deps.HTTPClient), nil
	case config.ProviderAfricasTalking:
		return NewAfricasTalkingTransport(cfg.AfricasTalking, deps.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown whatsapp provider %q", cfg.Provider)
	}
}
