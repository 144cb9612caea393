package composer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	p, err := Text(" +2348012345678 ", "Your rent receipt is ready")
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"messaging_product": "whatsapp",
		"recipient_type": "individual",
		"to": "+2348012345678",
		"type": "text",
		"text": {"body": "Your rent receipt is ready"}
	}`, string(raw))
	assert.Equal(t, "Your rent receipt is ready", p.Preview())
}

func TestText_Validation(t *testing.T) {
	_, err := Text("", "hello")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "to", ve.Field)

	_, err = Text("+2348012345678", "   ")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "body", ve.Field)

	_, err = Text("+2348012345678", strings.Repeat("x", MaxTextBody+1))
	assert.ErrorAs(t, err, &ve)
}

func TestButtons(t *testing.T) {
	p, err := Buttons("+2348012345678", "Confirm your viewing?", []Button{
		{ID: "confirm_viewing", Title: "Confirm"},
		{ID: "reschedule", Title: "Reschedule"},
	})
	require.NoError(t, err)

	require.NotNil(t, p.Interactive)
	assert.Equal(t, TypeInteractive, p.Type)
	assert.Equal(t, "button", p.Interactive.Type)
	require.Len(t, p.Interactive.Action.Buttons, 2)
	assert.Equal(t, "reply", p.Interactive.Action.Buttons[0].Type)
	assert.Equal(t, "confirm_viewing", p.Interactive.Action.Buttons[0].Reply.ID)
	assert.Equal(t, "Confirm your viewing?", p.Preview())
}

func TestButtons_Validation(t *testing.T) {
	tests := []struct {
		name    string
		buttons []Button
	}{
		{"none", nil},
		{"too many", []Button{{"a", "A"}, {"b", "B"}, {"c", "C"}, {"d", "D"}}},
		{"long title", []Button{{"a", "This title is far too long"}}},
		{"missing id", []Button{{"", "A"}}},
		{"duplicate id", []Button{{"a", "A"}, {"a", "B"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Buttons("+2348012345678", "Pick one", tt.buttons)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestList(t *testing.T) {
	sections := []Section{
		{Title: "Units", Rows: []Row{
			{ID: "unit_b4", Title: "Unit B4", Description: "2 bedroom"},
			{ID: "unit_c1", Title: "Unit C1"},
		}},
	}

	p, err := List("+2348012345678", "Which unit?", "Choose unit", sections)
	require.NoError(t, err)
	assert.Equal(t, "list", p.Interactive.Type)
	assert.Equal(t, "Choose unit", p.Interactive.Action.Button)
	assert.Len(t, p.Interactive.Action.Sections[0].Rows, 2)

	sections[0].Title = "mutated"
	assert.Equal(t, "Units", p.Interactive.Action.Sections[0].Title)
}

func TestList_Validation(t *testing.T) {
	var rows []Row
	for i := 0; i <= MaxListRows; i++ {
		rows = append(rows, Row{ID: strings.Repeat("r", i+1), Title: "Row"})
	}

	_, err := List("+2348012345678", "Pick", "Open", []Section{{Rows: rows}})
	assert.Error(t, err)

	_, err = List("+2348012345678", "Pick", "", []Section{{Rows: rows[:1]}})
	assert.Error(t, err)

	_, err = List("+2348012345678", "Pick", "Open", []Section{{Rows: rows[:1]}, {Rows: rows[1:2]}})
	assert.Error(t, err, "untitled sections are rejected when there are several")
}

func TestTemplate(t *testing.T) {
	p, err := Template("+2348012345678", "rent_reminder", "en_US", []Component{
		HeaderComponent(DocumentParam("https://files.example.com/invoice.pdf", "invoice.pdf")),
		BodyComponent(
			TextParam("Ada"),
			CurrencyParam("₦150,000", "NGN", 150000000),
			DateTimeParam("1 March 2025"),
		),
	})
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"messaging_product": "whatsapp",
		"recipient_type": "individual",
		"to": "+2348012345678",
		"type": "template",
		"template": {
			"name": "rent_reminder",
			"language": {"code": "en_US"},
			"components": [
				{"type": "header", "parameters": [
					{"type": "document", "document": {"link": "https://files.example.com/invoice.pdf", "filename": "invoice.pdf"}}
				]},
				{"type": "body", "parameters": [
					{"type": "text", "text": "Ada"},
					{"type": "currency", "currency": {"fallback_value": "₦150,000", "code": "NGN", "amount_1000": 150000000}},
					{"type": "date_time", "date_time": {"fallback_value": "1 March 2025"}}
				]}
			]
		}
	}`, string(raw))

	assert.Equal(t, []string{"Ada", "₦150,000", "1 March 2025"}, p.TemplateParams())
	assert.Equal(t, "template:rent_reminder", p.Preview())
}

func TestTemplate_Validation(t *testing.T) {
	_, err := Template("+2348012345678", "", "en", nil)
	assert.Error(t, err)

	_, err = Template("+2348012345678", "welcome", "en", []Component{BodyComponent(TextParam(""))})
	assert.Error(t, err)

	_, err = Template("+2348012345678", "welcome", "en", []Component{HeaderComponent(ImageParam(""))})
	assert.Error(t, err)

	_, err = Template("+2348012345678", "welcome", "en", []Component{{Type: ComponentButton, Index: "x"}})
	assert.Error(t, err)

	p, err := Template("+2348012345678", "welcome", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "en", p.Template.Language.Code)
}

func TestWithButtonPayload(t *testing.T) {
	base, err := Template("+2348012345678", "lease_offer", "en", []Component{
		BodyComponent(TextParam("Ada")),
		QuickReplyButton(0, "default"),
	})
	require.NoError(t, err)

	p, err := base.WithButtonPayload(0, "accept_lease:42")
	require.NoError(t, err)
	require.Len(t, p.Template.Components, 2)
	assert.Equal(t, "accept_lease:42", p.Template.Components[1].Parameters[0].Payload)
	assert.Equal(t, "quick_reply", p.Template.Components[1].SubType)

	// the original payload is untouched
	assert.Equal(t, "default", base.Template.Components[1].Parameters[0].Payload)

	p, err = p.WithButtonPayload(1, "decline_lease:42")
	require.NoError(t, err)
	require.Len(t, p.Template.Components, 3)
	assert.Equal(t, "1", p.Template.Components[2].Index)
}

func TestWithButtonPayload_Validation(t *testing.T) {
	text, err := Text("+2348012345678", "hi")
	require.NoError(t, err)
	_, err = text.WithButtonPayload(0, "x")
	assert.Error(t, err)

	tmpl, err := Template("+2348012345678", "lease_offer", "en", nil)
	require.NoError(t, err)
	_, err = tmpl.WithButtonPayload(-1, "x")
	assert.Error(t, err)
	_, err = tmpl.WithButtonPayload(0, "")
	assert.Error(t, err)
}
