package composer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Cloud API limits
const (
	MaxButtons         = 3
	MaxTemplateButtons = 10
	MaxButtonTitle     = 20
	MaxListRows        = 10
	MaxListSections    = 10
	MaxRowTitle        = 24
	MaxRowDescription  = 72
	MaxTextBody        = 4096
	MaxInteractiveBody = 1024
)

// ValidationError is returned when a payload cannot be composed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func base(to string, t MessageType) (Payload, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return Payload{}, &ValidationError{Field: "to", Message: "recipient is required"}
	}
	return Payload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             t,
	}, nil
}

func checkBody(body string, max int) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Field: "body", Message: "body is required"}
	}
	if utf8.RuneCountInString(body) > max {
		return &ValidationError{Field: "body", Message: fmt.Sprintf("body exceeds %d characters", max)}
	}
	return nil
}

// Text builds a plain text message
func Text(to, body string) (Payload, error) {
	p, err := base(to, TypeText)
	if err != nil {
		return Payload{}, err
	}
	if err := checkBody(body, MaxTextBody); err != nil {
		return Payload{}, err
	}
	p.Text = &TextBody{Body: body}
	return p, nil
}

// Buttons builds an interactive reply-button message
func Buttons(to, bodyText string, buttons []Button) (Payload, error) {
	p, err := base(to, TypeInteractive)
	if err != nil {
		return Payload{}, err
	}
	if err := checkBody(bodyText, MaxInteractiveBody); err != nil {
		return Payload{}, err
	}
	if len(buttons) == 0 || len(buttons) > MaxButtons {
		return Payload{}, &ValidationError{Field: "buttons", Message: fmt.Sprintf("between 1 and %d buttons required, got %d", MaxButtons, len(buttons))}
	}

	seen := make(map[string]bool, len(buttons))
	actions := make([]ActionButton, 0, len(buttons))
	for i, b := range buttons {
		if b.ID == "" || b.Title == "" {
			return Payload{}, &ValidationError{Field: "buttons", Message: fmt.Sprintf("button %d needs an id and a title", i)}
		}
		if utf8.RuneCountInString(b.Title) > MaxButtonTitle {
			return Payload{}, &ValidationError{Field: "buttons", Message: fmt.Sprintf("button %q title exceeds %d characters", b.ID, MaxButtonTitle)}
		}
		if seen[b.ID] {
			return Payload{}, &ValidationError{Field: "buttons", Message: fmt.Sprintf("duplicate button id %q", b.ID)}
		}
		seen[b.ID] = true
		actions = append(actions, ActionButton{Type: "reply", Reply: b})
	}

	p.Interactive = &InteractiveBody{
		Type:   "button",
		Body:   InteractiveText{Text: bodyText},
		Action: InteractiveAction{Buttons: actions},
	}
	return p, nil
}

// List builds an interactive list message
func List(to, bodyText, buttonText string, sections []Section) (Payload, error) {
	p, err := base(to, TypeInteractive)
	if err != nil {
		return Payload{}, err
	}
	if err := checkBody(bodyText, MaxInteractiveBody); err != nil {
		return Payload{}, err
	}
	if buttonText == "" || utf8.RuneCountInString(buttonText) > MaxButtonTitle {
		return Payload{}, &ValidationError{Field: "button_text", Message: fmt.Sprintf("must be 1 to %d characters", MaxButtonTitle)}
	}
	if len(sections) == 0 || len(sections) > MaxListSections {
		return Payload{}, &ValidationError{Field: "sections", Message: fmt.Sprintf("between 1 and %d sections required", MaxListSections)}
	}

	rows := 0
	seen := map[string]bool{}
	for _, s := range sections {
		if len(s.Rows) == 0 {
			return Payload{}, &ValidationError{Field: "sections", Message: "section has no rows"}
		}
		if len(sections) > 1 && s.Title == "" {
			return Payload{}, &ValidationError{Field: "sections", Message: "section title is required when there is more than one section"}
		}
		for _, r := range s.Rows {
			rows++
			if r.ID == "" || r.Title == "" {
				return Payload{}, &ValidationError{Field: "rows", Message: "row needs an id and a title"}
			}
			if utf8.RuneCountInString(r.Title) > MaxRowTitle {
				return Payload{}, &ValidationError{Field: "rows", Message: fmt.Sprintf("row %q title exceeds %d characters", r.ID, MaxRowTitle)}
			}
			if utf8.RuneCountInString(r.Description) > MaxRowDescription {
				return Payload{}, &ValidationError{Field: "rows", Message: fmt.Sprintf("row %q description exceeds %d characters", r.ID, MaxRowDescription)}
			}
			if seen[r.ID] {
				return Payload{}, &ValidationError{Field: "rows", Message: fmt.Sprintf("duplicate row id %q", r.ID)}
			}
			seen[r.ID] = true
		}
	}
	if rows > MaxListRows {
		return Payload{}, &ValidationError{Field: "rows", Message: fmt.Sprintf("at most %d rows allowed, got %d", MaxListRows, rows)}
	}

	p.Interactive = &InteractiveBody{
		Type:   "list",
		Body:   InteractiveText{Text: bodyText},
		Action: InteractiveAction{Button: buttonText, Sections: append([]Section(nil), sections...)},
	}
	return p, nil
}

// Template builds a pre-approved template message
func Template(to, templateName, languageCode string, components []Component) (Payload, error) {
	p, err := base(to, TypeTemplate)
	if err != nil {
		return Payload{}, err
	}
	if strings.TrimSpace(templateName) == "" {
		return Payload{}, &ValidationError{Field: "template", Message: "template name is required"}
	}
	if languageCode == "" {
		languageCode = "en"
	}
	for _, c := range components {
		switch c.Type {
		case ComponentHeader, ComponentBody:
		case ComponentButton:
			if _, err := strconv.Atoi(c.Index); err != nil {
				return Payload{}, &ValidationError{Field: "components", Message: "button component needs a numeric index"}
			}
		default:
			return Payload{}, &ValidationError{Field: "components", Message: "unknown component type " + string(c.Type)}
		}
		for _, param := range c.Parameters {
			if err := param.validate(); err != nil {
				return Payload{}, err
			}
		}
	}

	p.Template = &TemplateBody{
		Name:       templateName,
		Language:   Language{Code: languageCode},
		Components: append([]Component(nil), components...),
	}
	return p, nil
}

// WithButtonPayload returns a copy of a template payload whose quick-reply
// button at index carries payload, replacing any payload already set there.
func (p Payload) WithButtonPayload(index int, payload string) (Payload, error) {
	if p.Type != TypeTemplate || p.Template == nil {
		return Payload{}, &ValidationError{Field: "type", Message: "button payloads only apply to template messages"}
	}
	if index < 0 || index >= MaxTemplateButtons {
		return Payload{}, &ValidationError{Field: "index", Message: fmt.Sprintf("button index %d out of range", index)}
	}
	if payload == "" {
		return Payload{}, &ValidationError{Field: "payload", Message: "payload is required"}
	}

	tmpl := *p.Template
	tmpl.Components = make([]Component, 0, len(p.Template.Components)+1)
	button := QuickReplyButton(index, payload)
	replaced := false
	for _, c := range p.Template.Components {
		if c.Type == ComponentButton && c.Index == button.Index {
			c = button
			replaced = true
		}
		tmpl.Components = append(tmpl.Components, c)
	}
	if !replaced {
		tmpl.Components = append(tmpl.Components, button)
	}

	p.Template = &tmpl
	return p, nil
}
