package dispatcher

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-resty/resty/v2"

	"wachannel/internal/composer"
	"wachannel/internal/config"
)

const africasTalkingSendPath = "/whatsapp/message/send"

// AfricasTalkingTransport sends through Africa's Talking chat API
type AfricasTalkingTransport struct {
	client   *resty.Client
	apiKey   string
	username string
	waNumber string
}

type africasTalkingRequest struct {
	Username    string             `json:"username"`
	WANumber    string             `json:"waNumber"`
	PhoneNumber string             `json:"phoneNumber"`
	Body        africasTalkingBody `json:"body"`
}

type africasTalkingBody struct {
	Message string `json:"message"`
}

func NewAfricasTalkingTransport(cfg config.AfricasTalkingConfig, httpClient *http.Client) *AfricasTalkingTransport {
	return &AfricasTalkingTransport{
		client:   newRestClient(cfg.BaseURL, httpClient),
		apiKey:   cfg.APIKey,
		username: cfg.Username,
		waNumber: cfg.WANumber,
	}
}

func (t *AfricasTalkingTransport) Name() string { return config.ProviderAfricasTalking }

func (t *AfricasTalkingTransport) Send(ctx context.Context, payload composer.Payload) (Result, error) {
	body := africasTalkingRequest{
		Username:    t.username,
		WANumber:    t.waNumber,
		PhoneNumber: payload.To,
		Body:        africasTalkingBody{Message: payload.Preview()},
	}

	raw, err := postJSON(ctx, t.Name(), t.client.R().SetHeader("apiKey", t.apiKey), africasTalkingSendPath, body)
	if err != nil {
		return Result{}, err
	}

	id := firstString(raw, "messageId", "data.messageId", "id")
	if id == "" {
		return Result{}, &ProviderError{
			Provider: t.Name(),
			Body:     truncate(string(raw), maxErrorBody),
			Err:      errors.New("response carries no message id"),
		}
	}

	return Result{
		ProviderMessageID: id,
		RawStatus:         firstString(raw, "status", "data.status"),
		Provider:          t.Name(),
		Raw:               raw,
	}, nil
}
