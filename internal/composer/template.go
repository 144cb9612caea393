package composer

import "strconv"

// ComponentType is the slot a template component fills
type ComponentType string

const (
	ComponentHeader ComponentType = "header"
	ComponentBody   ComponentType = "body"
	ComponentButton ComponentType = "button"
)

// ParameterType enumerates the typed template parameters
type ParameterType string

const (
	ParamText     ParameterType = "text"
	ParamCurrency ParameterType = "currency"
	ParamDateTime ParameterType = "date_time"
	ParamImage    ParameterType = "image"
	ParamDocument ParameterType = "document"
	ParamVideo    ParameterType = "video"
	ParamPayload  ParameterType = "payload"
)

type Component struct {
	Type       ComponentType `json:"type"`
	SubType    string        `json:"sub_type,omitempty"`
	Index      string        `json:"index,omitempty"`
	Parameters []Parameter   `json:"parameters,omitempty"`
}

type Parameter struct {
	Type     ParameterType `json:"type"`
	Text     string        `json:"text,omitempty"`
	Payload  string        `json:"payload,omitempty"`
	Currency *Currency     `json:"currency,omitempty"`
	DateTime *DateTime     `json:"date_time,omitempty"`
	Image    *Media        `json:"image,omitempty"`
	Document *Media        `json:"document,omitempty"`
	Video    *Media        `json:"video,omitempty"`
}

// Currency amounts are expressed in thousandths of the unit
type Currency struct {
	FallbackValue string `json:"fallback_value"`
	Code          string `json:"code"`
	Amount1000    int64  `json:"amount_1000"`
}

type DateTime struct {
	FallbackValue string `json:"fallback_value"`
}

type Media struct {
	Link     string `json:"link,omitempty"`
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func TextParam(text string) Parameter {
	return Parameter{Type: ParamText, Text: text}
}

func CurrencyParam(fallback, code string, amount1000 int64) Parameter {
	return Parameter{Type: ParamCurrency, Currency: &Currency{FallbackValue: fallback, Code: code, Amount1000: amount1000}}
}

func DateTimeParam(fallback string) Parameter {
	return Parameter{Type: ParamDateTime, DateTime: &DateTime{FallbackValue: fallback}}
}

func ImageParam(link string) Parameter {
	return Parameter{Type: ParamImage, Image: &Media{Link: link}}
}

func DocumentParam(link, filename string) Parameter {
	return Parameter{Type: ParamDocument, Document: &Media{Link: link, Filename: filename}}
}

func VideoParam(link string) Parameter {
	return Parameter{Type: ParamVideo, Video: &Media{Link: link}}
}

// String renders the parameter as text for transports without typed templates
func (p Parameter) String() string {
	switch p.Type {
	case ParamText:
		return p.Text
	case ParamPayload:
		return p.Payload
	case ParamCurrency:
		if p.Currency != nil {
			return p.Currency.FallbackValue
		}
	case ParamDateTime:
		if p.DateTime != nil {
			return p.DateTime.FallbackValue
		}
	case ParamImage:
		if p.Image != nil {
			return p.Image.Link
		}
	case ParamDocument:
		if p.Document != nil {
			return p.Document.Link
		}
	case ParamVideo:
		if p.Video != nil {
			return p.Video.Link
		}
	}
	return ""
}

func HeaderComponent(params ...Parameter) Component {
	return Component{Type: ComponentHeader, Parameters: params}
}

func BodyComponent(params ...Parameter) Component {
	return Component{Type: ComponentBody, Parameters: params}
}

// QuickReplyButton fills the quick-reply button at the given position
func QuickReplyButton(index int, payload string) Component {
	return Component{
		Type:       ComponentButton,
		SubType:    "quick_reply",
		Index:      strconv.Itoa(index),
		Parameters: []Parameter{{Type: ParamPayload, Payload: payload}},
	}
}

func (p Parameter) validate() error {
	switch p.Type {
	case ParamText:
		if p.Text == "" {
			return &ValidationError{Field: "parameter", Message: "text parameter is empty"}
		}
	case ParamPayload:
		if p.Payload == "" {
			return &ValidationError{Field: "parameter", Message: "payload parameter is empty"}
		}
	case ParamCurrency:
		if p.Currency == nil || p.Currency.Code == "" {
			return &ValidationError{Field: "parameter", Message: "currency parameter requires a code"}
		}
	case ParamDateTime:
		if p.DateTime == nil {
			return &ValidationError{Field: "parameter", Message: "date_time parameter requires a fallback value"}
		}
	case ParamImage, ParamDocument, ParamVideo:
		m := p.Image
		if p.Type == ParamDocument {
			m = p.Document
		} else if p.Type == ParamVideo {
			m = p.Video
		}
		if m == nil || (m.Link == "" && m.ID == "") {
			return &ValidationError{Field: "parameter", Message: string(p.Type) + " parameter requires a link or media id"}
		}
	default:
		return &ValidationError{Field: "parameter", Message: "unknown parameter type " + string(p.Type)}
	}
	return nil
}
