package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"wachannel/internal/composer"
	"wachannel/internal/config"
)

const (
	sendchampTemplatePath = "/api/v1/whatsapp/template/send"
	sendchampMessagePath  = "/api/v1/whatsapp/message/send"
)

// SendchampTransport sends through Sendchamp's WhatsApp API. Templates go
// to the template endpoint; everything else is flattened to text.
type SendchampTransport struct {
	client *resty.Client
	sender string
}

type sendchampTemplateRequest struct {
	Recipient    string                       `json:"recipient"`
	Sender       string                       `json:"sender"`
	Type         string                       `json:"type"`
	TemplateCode string                       `json:"template_code"`
	CustomData   map[string]map[string]string `json:"custom_data,omitempty"`
}

type sendchampTextRequest struct {
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

func NewSendchampTransport(cfg config.SendchampConfig, httpClient *http.Client) *SendchampTransport {
	return &SendchampTransport{
		client: newRestClient(cfg.BaseURL, httpClient).SetAuthToken(cfg.SecretKey),
		sender: cfg.Sender,
	}
}

func (t *SendchampTransport) Name() string { return config.ProviderSendchamp }

func (t *SendchampTransport) Send(ctx context.Context, payload composer.Payload) (Result, error) {
	recipient := strings.TrimPrefix(payload.To, "+")

	var (
		path string
		body any
	)
	if payload.Type == composer.TypeTemplate && payload.Template != nil {
		path = sendchampTemplatePath
		req := sendchampTemplateRequest{
			Recipient:    recipient,
			Sender:       t.sender,
			Type:         "template",
			TemplateCode: payload.Template.Name,
		}
		if params := payload.TemplateParams(); len(params) > 0 {
			fields := make(map[string]string, len(params))
			for i, p := range params {
				fields[strconv.Itoa(i+1)] = p
			}
			req.CustomData = map[string]map[string]string{"body": fields}
		}
		body = req
	} else {
		path = sendchampMessagePath
		body = sendchampTextRequest{
			Recipient: recipient,
			Sender:    t.sender,
			Type:      "text",
			Message:   payload.Preview(),
		}
	}

	raw, err := postJSON(ctx, t.Name(), t.client.R(), path, body)
	if err != nil {
		return Result{}, err
	}

	id := firstString(raw, "data.id", "data.reference", "data.message_id")
	if id == "" {
		return Result{}, &ProviderError{
			Provider: t.Name(),
			Body:     truncate(string(raw), maxErrorBody),
			Err:      errors.New("response carries no message id"),
		}
	}

	return Result{
		ProviderMessageID: id,
		RawStatus:         firstString(raw, "data.status", "status"),
		Provider:          t.Name(),
		Raw:               raw,
	}, nil
}
