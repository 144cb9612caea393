package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wachannel/internal/composer"
	"wachannel/internal/simulator"
)

// ProviderSimulated names the transport that never leaves the process
const ProviderSimulated = "simulated"

// SimulatedTransport publishes payloads to simulator observers and answers
// with a Cloud API shaped acknowledgement.
type SimulatedTransport struct {
	publisher  simulator.Publisher
	identities simulator.IdentityLookup
}

type graphContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type graphMessage struct {
	ID            string `json:"id"`
	MessageStatus string `json:"message_status"`
}

type graphSendResponse struct {
	MessagingProduct string         `json:"messaging_product"`
	Contacts         []graphContact `json:"contacts"`
	Messages         []graphMessage `json:"messages"`
}

func NewSimulatedTransport(publisher simulator.Publisher, identities simulator.IdentityLookup) *SimulatedTransport {
	if identities == nil {
		identities = simulator.PassthroughLookup{}
	}
	return &SimulatedTransport{publisher: publisher, identities: identities}
}

func (t *SimulatedTransport) Name() string { return ProviderSimulated }

func (t *SimulatedTransport) Send(ctx context.Context, payload composer.Payload) (Result, error) {
	display := payload
	display.To = t.identities.Lookup(ctx, payload.To)

	if err := t.publisher.Publish(ctx, display); err != nil {
		return Result{}, &ProviderError{Provider: t.Name(), Err: fmt.Errorf("failed to publish to simulator: %w", err)}
	}

	id := "wamid." + uuid.NewString()
	raw, err := json.Marshal(graphSendResponse{
		MessagingProduct: "whatsapp",
		Contacts:         []graphContact{{Input: payload.To, WaID: strings.TrimPrefix(payload.To, "+")}},
		Messages:         []graphMessage{{ID: id, MessageStatus: "accepted"}},
	})
	if err != nil {
		return Result{}, &ProviderError{Provider: t.Name(), Err: err}
	}

	return Result{ProviderMessageID: id, RawStatus: "accepted", Provider: t.Name(), Raw: raw}, nil
}
