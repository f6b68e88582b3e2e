package whatsapp

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"whatsapp-suite/internal/apperr"
)

// MediaClass is the WhatsApp message type used for a media attachment.
type MediaClass string

const (
	MediaAudio    MediaClass = "audio"
	MediaDocument MediaClass = "document"
	MediaImage    MediaClass = "image"
	MediaSticker  MediaClass = "sticker"
	MediaVideo    MediaClass = "video"
)

type mediaRule struct {
	class       MediaClass
	mimeTypes   []string
	sizeLimitMB float64
}

// Checked in this order; the first class listing the MIME type wins.
var mediaRules = []mediaRule{
	{MediaAudio, []string{"audio/aac", "audio/mp4", "audio/mpeg", "audio/amr", "audio/ogg"}, 16},
	{MediaDocument, []string{
		"text/plain",
		"application/pdf",
		"application/vnd.ms-powerpoint",
		"application/msword",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, 100},
	{MediaImage, []string{"image/jpeg", "image/png"}, 5},
	{MediaSticker, []string{"image/webp"}, 0.1},
	{MediaVideo, []string{"video/mp4", "video/3gpp"}, 16},
}

// Attachment is a file to be sent as a media message.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// ValidateMedia classifies an attachment and enforces the Cloud API size
// limits. An empty MIME type is sniffed from the content.
func ValidateMedia(att Attachment) (MediaClass, string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(att.MimeType))
	if mimeType == "" {
		mimeType = mimetype.Detect(att.Data).String()
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	var rule *mediaRule
	for i := range mediaRules {
		for _, mt := range mediaRules[i].mimeTypes {
			if mt == mimeType {
				rule = &mediaRules[i]
				break
			}
		}
		if rule != nil {
			break
		}
	}
	if rule == nil {
		return "", mimeType, apperr.Validation("Unsupported file type for %s. Supported types: %s", att.Name, supportedTypes())
	}

	sizeMB := float64(len(att.Data)) / (1024 * 1024)
	if sizeMB > rule.sizeLimitMB {
		return "", mimeType, apperr.Validation("File %s exceeds WhatsApp size limit of %gMB for %s media.", att.Name, rule.sizeLimitMB, rule.class)
	}
	return rule.class, mimeType, nil
}

func supportedTypes() string {
	parts := make([]string, 0, len(mediaRules))
	for _, r := range mediaRules {
		parts = append(parts, fmt.Sprintf("%s: %s", r.class, strings.Join(r.mimeTypes, ", ")))
	}
	return strings.Join(parts, ", ")
}
