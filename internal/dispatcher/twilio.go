package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"wachannel/internal/composer"
	"wachannel/internal/config"
)

// messageCreator is the slice of the Twilio SDK the transport needs
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioTransport sends through Twilio's WhatsApp sender using the SDK
type TwilioTransport struct {
	api    messageCreator
	from   string
	logger *zap.Logger
}

func NewTwilioTransport(cfg config.TwilioConfig, logger *zap.Logger) *TwilioTransport {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioTransport(client.Api, cfg.From, logger)
}

func newTwilioTransport(api messageCreator, from string, logger *zap.Logger) *TwilioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwilioTransport{api: api, from: whatsappAddress(from), logger: logger}
}

func (t *TwilioTransport) Name() string { return config.ProviderTwilio }

func (t *TwilioTransport) Send(ctx context.Context, payload composer.Payload) (Result, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(payload.To))
	params.SetFrom(t.from)

	// Approved Twilio templates are addressed by content SID (HX...)
	if payload.Type == composer.TypeTemplate && payload.Template != nil && strings.HasPrefix(payload.Template.Name, "HX") {
		params.SetContentSid(payload.Template.Name)
		if vars := payload.TemplateParams(); len(vars) > 0 {
			m := make(map[string]string, len(vars))
			for i, v := range vars {
				m[strconv.Itoa(i+1)] = v
			}
			encoded, err := json.Marshal(m)
			if err != nil {
				return Result{}, &ProviderError{Provider: t.Name(), Err: err}
			}
			params.SetContentVariables(string(encoded))
		}
	} else {
		params.SetBody(payload.Preview())
	}

	done := make(chan twilioOutcome, 1)

	// The SDK takes no context, so a timed-out call keeps running and Twilio
	// may still deliver. The ledger then holds a FAILED row with no sid and
	// later status callbacks for that sid are unknown; the late sid is logged
	// so the two can be matched by hand.
	go func() {
		msg, err := t.api.CreateMessage(params)
		done <- twilioOutcome{msg, err}
	}()

	var out twilioOutcome
	select {
	case <-ctx.Done():
		go t.logLate(payload.To, done)
		return Result{}, &ProviderError{Provider: t.Name(), Err: ctx.Err()}
	case out = <-done:
	}

	if out.err != nil {
		perr := &ProviderError{Provider: t.Name(), Err: out.err}
		var restErr *twilioclient.TwilioRestError
		if errors.As(out.err, &restErr) {
			perr.StatusCode = restErr.Status
			perr.Body = restErr.Message
		}
		return Result{}, perr
	}
	if out.msg == nil || out.msg.Sid == nil {
		return Result{}, &ProviderError{Provider: t.Name(), Err: errors.New("response carries no message sid")}
	}

	raw, _ := json.Marshal(out.msg)
	status := ""
	if out.msg.Status != nil {
		status = *out.msg.Status
	}

	return Result{ProviderMessageID: *out.msg.Sid, RawStatus: status, Provider: t.Name(), Raw: raw}, nil
}

type twilioOutcome struct {
	msg *twilioApi.ApiV2010Message
	err error
}

// logLate waits for a call abandoned at timeout and records what Twilio did
func (t *TwilioTransport) logLate(to string, done <-chan twilioOutcome) {
	out := <-done
	if out.err != nil {
		t.logger.Info("twilio send failed after timeout", zap.String("to", to), zap.Error(out.err))
		return
	}
	if out.msg != nil && out.msg.Sid != nil {
		t.logger.Warn("twilio accepted message after timeout",
			zap.String("to", to),
			zap.String("provider_message_id", *out.msg.Sid),
		)
	}
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
