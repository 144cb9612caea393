package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"wachannel/internal/composer"
	"wachannel/internal/config"
)

// GraphTransport posts payloads straight to the WhatsApp Cloud API
type GraphTransport struct {
	client        *resty.Client
	apiVersion    string
	phoneNumberID string
}

func NewGraphTransport(cfg config.GraphConfig, httpClient *http.Client) *GraphTransport {
	return &GraphTransport{
		client:        newRestClient(cfg.BaseURL, httpClient).SetAuthToken(cfg.AccessToken),
		apiVersion:    cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

func (t *GraphTransport) Name() string { return config.ProviderGraph }

// Send forwards the payload verbatim; it is already in Cloud API shape
func (t *GraphTransport) Send(ctx context.Context, payload composer.Payload) (Result, error) {
	path := fmt.Sprintf("/%s/%s/messages", t.apiVersion, t.phoneNumberID)

	raw, err := postJSON(ctx, t.Name(), t.client.R(), path, payload)
	if err != nil {
		return Result{}, err
	}

	id := firstString(raw, "messages.0.id")
	if id == "" {
		return Result{}, &ProviderError{
			Provider: t.Name(),
			Body:     truncate(string(raw), maxErrorBody),
			Err:      errors.New("response carries no message id"),
		}
	}

	status := firstString(raw, "messages.0.message_status")
	if status == "" {
		status = "accepted"
	}

	return Result{ProviderMessageID: id, RawStatus: status, Provider: t.Name(), Raw: raw}, nil
}
