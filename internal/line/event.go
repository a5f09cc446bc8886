package line

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// EventKind is the normalized class of an inbound event.
type EventKind string

const (
	EventText     EventKind = "text"
	EventImage    EventKind = "image"
	EventPostback EventKind = "postback"
	EventOther    EventKind = "other"
)

// ImageSet identifies one image inside a multi-image send. Total is the
// declared size of the set; Index is 1-based.
type ImageSet struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// Event is the channel-agnostic form every downstream component consumes.
// It is also the wire shape forwarded to worker backends.
type Event struct {
	UserID     string    `json:"user_id"`
	ReplyToken string    `json:"reply_token,omitempty"`
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	// MessageIDs is set on a synthesized batch event covering a whole
	// debounced image burst.
	MessageIDs  []string  `json:"message_ids,omitempty"`
	MessageType string    `json:"message_type,omitempty"`
	Postback    string    `json:"postback,omitempty"`
	ImageSet    *ImageSet `json:"image_set,omitempty"`
	Timestamp   int64     `json:"timestamp,omitempty"`
}

type webhookEnvelope struct {
	Events []rawEvent `json:"events"`
}

type rawEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Timestamp  int64  `json:"timestamp"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID       string    `json:"id"`
		Type     string    `json:"type"`
		Text     string    `json:"text"`
		ImageSet *ImageSet `json:"imageSet"`
	} `json:"message"`
	Postback struct {
		Data string `json:"data"`
	} `json:"postback"`
}

// ParseWebhook normalizes a webhook body into ordered events. Events
// without a source user (group joins, account link callbacks) are dropped.
func ParseWebhook(body []byte) ([]Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}

	events := make([]Event, 0, len(env.Events))
	for _, re := range env.Events {
		if re.Source.UserID == "" {
			continue
		}
		ev := Event{
			UserID:     re.Source.UserID,
			ReplyToken: re.ReplyToken,
			Timestamp:  re.Timestamp,
		}
		switch re.Type {
		case "message":
			switch re.Message.Type {
			case "text":
				ev.Kind = EventText
				ev.Text = re.Message.Text
			case "image":
				ev.Kind = EventImage
				ev.MessageID = re.Message.ID
				ev.ImageSet = re.Message.ImageSet
			default:
				ev.Kind = EventOther
				ev.MessageID = re.Message.ID
				ev.MessageType = re.Message.Type
			}
		case "postback":
			ev.Kind = EventPostback
			ev.Postback = re.Postback.Data
		default:
			ev.Kind = EventOther
			ev.MessageType = re.Type
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParsePostbackData splits a key=value&key=value postback payload.
// Malformed payloads come back empty rather than erroring; a postback the
// bot did not mint deserves a fallback, not a crash.
func ParsePostbackData(data string) map[string]string {
	values, err := url.ParseQuery(data)
	if err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
