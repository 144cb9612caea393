package composer

import "fmt"

// MessageType is the Cloud API "type" discriminator
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeInteractive MessageType = "interactive"
	TypeTemplate    MessageType = "template"
)

// Payload is an outbound message in Cloud API shape. Transports either
// forward it verbatim or translate it to their own schema.
type Payload struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             MessageType      `json:"type"`
	Text             *TextBody        `json:"text,omitempty"`
	Interactive      *InteractiveBody `json:"interactive,omitempty"`
	Template         *TemplateBody    `json:"template,omitempty"`
}

type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// InteractiveBody covers reply-button and list messages
type InteractiveBody struct {
	Type   string            `json:"type"`
	Body   InteractiveText   `json:"body"`
	Action InteractiveAction `json:"action"`
}

type InteractiveText struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Buttons  []ActionButton `json:"buttons,omitempty"`
	Button   string         `json:"button,omitempty"`
	Sections []Section      `json:"sections,omitempty"`
}

type ActionButton struct {
	Type  string `json:"type"`
	Reply Button `json:"reply"`
}

// Button is a reply button; ID comes back in the inbound webhook when tapped
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Section struct {
	Title string `json:"title,omitempty"`
	Rows  []Row  `json:"rows"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type TemplateBody struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type Language struct {
	Code string `json:"code"`
}

// Preview returns a human-readable summary of the payload, used as the
// ledger content and by transports that only carry plain text.
func (p Payload) Preview() string {
	switch p.Type {
	case TypeText:
		if p.Text != nil {
			return p.Text.Body
		}
	case TypeInteractive:
		if p.Interactive != nil {
			return p.Interactive.Body.Text
		}
	case TypeTemplate:
		if p.Template != nil {
			return fmt.Sprintf("template:%s", p.Template.Name)
		}
	}
	return ""
}

// TemplateParams flattens the body parameters of a template payload
// into their text representation, in order.
func (p Payload) TemplateParams() []string {
	if p.Template == nil {
		return nil
	}
	var out []string
	for _, c := range p.Template.Components {
		if c.Type != ComponentBody {
			continue
		}
		for _, param := range c.Parameters {
			out = append(out, param.String())
		}
	}
	return out
}
