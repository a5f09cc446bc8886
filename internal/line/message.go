package line

import "encoding/json"

// maxCarouselColumns bounds template carousels; longer lists paginate
// through postbacks instead.
const maxCarouselColumns = 3

// Message is one outbound LINE message. Only the fields matching Type are
// set. A Message decoded from JSON keeps its original bytes and re-encodes
// verbatim, so flex payloads produced by worker backends pass through
// untouched.
type Message struct {
	Type               string          `json:"type,omitempty"`
	Text               string          `json:"text,omitempty"`
	OriginalContentURL string          `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string          `json:"previewImageUrl,omitempty"`
	AltText            string          `json:"altText,omitempty"`
	Template           *Template       `json:"template,omitempty"`
	Contents           json.RawMessage `json:"contents,omitempty"`

	raw json.RawMessage
}

type messageAlias Message

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(messageAlias(m))
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var a messageAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Message(a)
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Template is the inner payload of a template message.
type Template struct {
	Type    string           `json:"type"`
	Columns []CarouselColumn `json:"columns,omitempty"`
}

// CarouselColumn is one card of a carousel template.
type CarouselColumn struct {
	ThumbnailImageURL string   `json:"thumbnailImageUrl,omitempty"`
	Title             string   `json:"title,omitempty"`
	Text              string   `json:"text"`
	Actions           []Action `json:"actions"`
}

// Action is a tappable element inside templates and flex contents.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	Data  string `json:"data,omitempty"`
	Text  string `json:"text,omitempty"`
	URI   string `json:"uri,omitempty"`
}

func PostbackAction(label, data string) Action {
	return Action{Type: "postback", Label: label, Data: data}
}

func MessageAction(label, text string) Action {
	return Action{Type: "message", Label: label, Text: text}
}

func URIAction(label, uri string) Action {
	return Action{Type: "uri", Label: label, URI: uri}
}

// TextMessage builds a plain text message.
func TextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// ImageMessage builds an image message; preview reuses the full image.
func ImageMessage(url string) Message {
	return Message{Type: "image", OriginalContentURL: url, PreviewImageURL: url}
}

// CarouselMessage builds a template carousel, truncated to the column cap.
func CarouselMessage(altText string, columns []CarouselColumn) Message {
	if len(columns) > maxCarouselColumns {
		columns = columns[:maxCarouselColumns]
	}
	return Message{
		Type:     "template",
		AltText:  altText,
		Template: &Template{Type: "carousel", Columns: columns},
	}
}

// FlexMessage builds a flex message from an arbitrary contents value.
func FlexMessage(altText string, contents any) Message {
	data, err := json.Marshal(contents)
	if err != nil {
		return TextMessage(altText)
	}
	return Message{Type: "flex", AltText: altText, Contents: data}
}
