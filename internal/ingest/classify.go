package ingest

import (
	"fmt"
	"strings"

	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

// Message kinds recorded with captured messages.
const (
	KindText      = "text"
	KindSticker   = "sticker"
	KindPhoto     = "photo"
	KindVideo     = "video"
	KindDocument  = "document"
	KindAudio     = "audio"
	KindVoice     = "voice"
	KindVideoNote = "video_note"
	KindAnimation = "animation"
	KindLocation  = "location"
	KindContact   = "contact"
	KindUnknown   = "unknown"
)

// Classify determines a message's kind from which media field is present.
func Classify(m *telegram.Message) string {
	switch {
	case m.Text != "":
		return KindText
	case m.Sticker != nil:
		return KindSticker
	case len(m.Photo) > 0:
		return KindPhoto
	case m.Video != nil:
		return KindVideo
	case m.Document != nil:
		return KindDocument
	case m.Audio != nil:
		return KindAudio
	case m.Voice != nil:
		return KindVoice
	case m.VideoNote != nil:
		return KindVideoNote
	case m.Animation != nil:
		return KindAnimation
	case m.Location != nil:
		return KindLocation
	case m.Contact != nil:
		return KindContact
	default:
		return KindUnknown
	}
}

// Summarize builds a short textual representation of a message for the
// retention store. The store bounds the final length.
func Summarize(m *telegram.Message) string {
	switch Classify(m) {
	case KindText:
		return m.Text
	case KindSticker:
		return strings.TrimSpace("Sticker " + m.Sticker.Emoji)
	case KindPhoto:
		return strings.TrimSpace("Photo " + m.Caption)
	case KindVideo:
		return strings.TrimSpace("Video " + m.Caption)
	case KindDocument:
		return strings.TrimSpace(strings.Join([]string{"Document", m.Document.FileName, m.Caption}, " "))
	case KindAudio:
		return strings.TrimSpace(strings.Join([]string{"Audio", m.Audio.Title, m.Caption}, " "))
	case KindVoice:
		return "Voice message"
	case KindVideoNote:
		return "Video note"
	case KindAnimation:
		return strings.TrimSpace("GIF " + m.Caption)
	case KindLocation:
		return fmt.Sprintf("📍 Location (%g, %g)", m.Location.Latitude, m.Location.Longitude)
	case KindContact:
		name := strings.TrimSpace(m.Contact.FirstName + " " + m.Contact.LastName)
		return strings.TrimSpace(strings.Join([]string{"👤 Contact", name, m.Contact.PhoneNumber}, " "))
	default:
		return "Media message"
	}
}
