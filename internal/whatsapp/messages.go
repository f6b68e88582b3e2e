package whatsapp

import (
	"fmt"
	"strings"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/phone"
)

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Context          *ContextObj  `json:"context,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Image            *MediaObj    `json:"image,omitempty"`
	Video            *MediaObj    `json:"video,omitempty"`
	Audio            *MediaObj    `json:"audio,omitempty"`
	Document         *MediaObj    `json:"document,omitempty"`
	Sticker          *MediaObj    `json:"sticker,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

// ContextObj marks the message as a reply to an earlier one.
type ContextObj struct {
	MessageID string `json:"message_id"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Index      string         `json:"index,omitempty"` // For buttons
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type          string `json:"type"`
	ParameterName string `json:"parameter_name,omitempty"`
	Text          string `json:"text,omitempty"`
}

// Kind selects the shape Build produces.
type Kind string

const (
	KindText     Kind = "text"
	KindTemplate Kind = "template"
	KindMedia    Kind = "media"
)

// Content carries everything a message of any kind may need. Build reads
// only the fields relevant to the requested kind.
type Content struct {
	Text string

	TemplateName string
	Language     string
	// Parameters fill the BODY placeholders in order.
	Parameters []Parameter

	MediaClass MediaClass
	MediaID    string
	Caption    string
	Filename   string

	ReplyTo string
}

// Parameter is one placeholder value. Name is set only for templates
// using NAMED parameters.
type Parameter struct {
	Name  string
	Value string
}

// Build is the single place outbound payloads are assembled. Every caller
// that talks to the messages endpoint goes through it.
func Build(kind Kind, to string, content Content) (GenericMessage, error) {
	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone.Digits(to),
	}
	if msg.To == "" {
		return msg, apperr.Config("Recipient phone number is missing.")
	}
	if content.ReplyTo != "" {
		msg.Context = &ContextObj{MessageID: content.ReplyTo}
	}

	switch kind {
	case KindText:
		if strings.TrimSpace(content.Text) == "" {
			return msg, apperr.Validation("text message body is empty")
		}
		msg.Type = "text"
		msg.Text = &TextObj{Body: content.Text}

	case KindTemplate:
		if content.TemplateName == "" {
			return msg, apperr.Validation("template name is empty")
		}
		msg.Type = "template"
		msg.Template = &TemplateObj{
			Name:       content.TemplateName,
			Language:   LanguageObj{Code: LanguageCode(content.Language)},
			Components: []ComponentObj{},
		}
		if len(content.Parameters) > 0 {
			params := make([]ParameterObj, 0, len(content.Parameters))
			for _, p := range content.Parameters {
				params = append(params, ParameterObj{Type: "text", ParameterName: p.Name, Text: p.Value})
			}
			msg.Template.Components = append(msg.Template.Components, ComponentObj{Type: "body", Parameters: params})
		}

	case KindMedia:
		if content.MediaID == "" {
			return msg, apperr.Validation("media id is empty")
		}
		obj := &MediaObj{ID: content.MediaID, Caption: content.Caption}
		msg.Type = string(content.MediaClass)
		switch content.MediaClass {
		case MediaImage:
			msg.Image = obj
		case MediaVideo:
			msg.Video = obj
		case MediaDocument:
			obj.Filename = content.Filename
			msg.Document = obj
		case MediaAudio:
			// audio messages cannot carry a caption
			obj.Caption = ""
			msg.Audio = obj
		case MediaSticker:
			obj.Caption = ""
			msg.Sticker = obj
		default:
			return msg, apperr.Validation("unknown media class %q", content.MediaClass)
		}

	default:
		return msg, fmt.Errorf("unknown message kind %q", kind)
	}
	return msg, nil
}

// LanguageCode converts a locale such as "en-US" into the "en_US" form
// the Cloud API expects.
func LanguageCode(lang string) string {
	return strings.ReplaceAll(lang, "-", "_")
}
