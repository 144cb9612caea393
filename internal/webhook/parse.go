package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wachannel/internal/models"
)

// ErrMalformed is returned for bodies that are not a Cloud API notification
var ErrMalformed = errors.New("malformed webhook payload")

// Batch is everything a single notification asks the ledger to do
type Batch struct {
	Statuses []models.DeliveryStatusEvent
	Messages []*models.ChatLogEntry
	// Skipped counts statuses with a value outside the lattice (e.g. "deleted")
	Skipped int
}

type inboundMetadata struct {
	ContactName   string          `json:"contact_name,omitempty"`
	PhoneNumberID string          `json:"phone_number_id,omitempty"`
	ReplyTo       string          `json:"reply_to,omitempty"`
	ReplyID       string          `json:"reply_id,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
}

// Parse decodes a webhook body
func Parse(body []byte) (*Batch, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.Entry == nil {
		return nil, fmt.Errorf("%w: missing entry", ErrMalformed)
	}

	batch := &Batch{}
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, st := range v.Statuses {
				event, ok, err := statusEvent(st)
				if err != nil {
					return nil, err
				}
				if !ok {
					batch.Skipped++
					continue
				}
				batch.Statuses = append(batch.Statuses, event)
			}

			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				logEntry, err := inboundEntry(m, names[m.From], v.Metadata.PhoneNumberID)
				if err != nil {
					return nil, err
				}
				batch.Messages = append(batch.Messages, logEntry)
			}
		}
	}

	return batch, nil
}

func statusEvent(st Status) (models.DeliveryStatusEvent, bool, error) {
	if st.ID == "" {
		return models.DeliveryStatusEvent{}, false, fmt.Errorf("%w: status without message id", ErrMalformed)
	}
	status, err := models.ParseDeliveryStatus(st.Status)
	if err != nil {
		return models.DeliveryStatusEvent{}, false, nil
	}

	event := models.DeliveryStatusEvent{
		ProviderMessageID: st.ID,
		Status:            status,
		Timestamp:         unixTime(st.Timestamp),
	}
	if len(st.Errors) > 0 {
		e := st.Errors[0]
		code := strconv.Itoa(e.Code)
		reason := e.Title
		if reason == "" {
			reason = e.Message
		}
		event.ErrorCode = &code
		if reason != "" {
			event.ErrorReason = &reason
		}
	}
	return event, true, nil
}

func inboundEntry(m Message, contactName, phoneNumberID string) (*models.ChatLogEntry, error) {
	if m.ID == "" || m.From == "" {
		return nil, fmt.Errorf("%w: message without id or sender", ErrMalformed)
	}

	id := m.ID
	entry := &models.ChatLogEntry{
		PhoneNumber:       models.NormalizePhone(m.From),
		Direction:         models.DirectionInbound,
		MessageType:       m.Type,
		ProviderMessageID: &id,
	}
	if entry.MessageType == "" {
		entry.MessageType = "unknown"
	}
	if content := messageContent(m); content != "" {
		entry.Content = &content
	}

	meta := inboundMetadata{
		ContactName:   contactName,
		PhoneNumberID: phoneNumberID,
		Message:       m.raw,
	}
	if m.Context != nil {
		meta.ReplyTo = m.Context.ID
	}
	if m.Interactive != nil {
		switch {
		case m.Interactive.ButtonReply != nil:
			meta.ReplyID = m.Interactive.ButtonReply.ID
		case m.Interactive.ListReply != nil:
			meta.ReplyID = m.Interactive.ListReply.ID
		}
	}
	if m.Button != nil {
		meta.ReplyID = m.Button.Payload
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message metadata: %w", err)
	}
	entry.Metadata = raw

	return entry, nil
}

// messageContent is the text a human would read in the chat
func messageContent(m Message) string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title
	case m.Button != nil:
		return m.Button.Text
	case m.Image != nil:
		return m.Image.Caption
	case m.Document != nil:
		if m.Document.Caption != "" {
			return m.Document.Caption
		}
		return m.Document.Filename
	}
	return ""
}

func unixTime(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
