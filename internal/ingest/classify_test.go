package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  *telegram.Message
		want string
	}{
		{"text", &telegram.Message{Text: "hello"}, KindText},
		{"sticker", &telegram.Message{Sticker: &telegram.Sticker{Emoji: "😀"}}, KindSticker},
		{"photo", &telegram.Message{Photo: []telegram.PhotoSize{{FileID: "f"}}}, KindPhoto},
		{"video", &telegram.Message{Video: &telegram.Video{}}, KindVideo},
		{"document", &telegram.Message{Document: &telegram.Document{FileName: "x.pdf"}}, KindDocument},
		{"audio", &telegram.Message{Audio: &telegram.Audio{}}, KindAudio},
		{"voice", &telegram.Message{Voice: &telegram.Voice{}}, KindVoice},
		{"video note", &telegram.Message{VideoNote: &telegram.VideoNote{}}, KindVideoNote},
		{"animation", &telegram.Message{Animation: &telegram.Animation{}}, KindAnimation},
		{"location", &telegram.Message{Location: &telegram.Location{}}, KindLocation},
		{"contact", &telegram.Message{Contact: &telegram.Contact{}}, KindContact},
		{"empty", &telegram.Message{}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "hello there", Summarize(&telegram.Message{Text: "hello there"}))
	assert.Equal(t, "Sticker 😀", Summarize(&telegram.Message{Sticker: &telegram.Sticker{Emoji: "😀"}}))
	assert.Equal(t, "Sticker", Summarize(&telegram.Message{Sticker: &telegram.Sticker{}}))
	assert.Equal(t, "Photo sunset", Summarize(&telegram.Message{
		Photo:   []telegram.PhotoSize{{FileID: "f"}},
		Caption: "sunset",
	}))
	assert.Equal(t, "Voice message", Summarize(&telegram.Message{Voice: &telegram.Voice{}}))
	assert.Equal(t, "Video note", Summarize(&telegram.Message{VideoNote: &telegram.VideoNote{}}))
	assert.Equal(t, "📍 Location (55.75, 37.61)", Summarize(&telegram.Message{
		Location: &telegram.Location{Latitude: 55.75, Longitude: 37.61},
	}))
	assert.Equal(t, "Media message", Summarize(&telegram.Message{}))
}

func TestSummarize_DocumentAndContact(t *testing.T) {
	got := Summarize(&telegram.Message{Document: &telegram.Document{FileName: "report.pdf"}, Caption: "q3"})
	assert.Contains(t, got, "Document")
	assert.Contains(t, got, "report.pdf")
	assert.Contains(t, got, "q3")

	got = Summarize(&telegram.Message{Contact: &telegram.Contact{FirstName: "Ada", PhoneNumber: "+1555"}})
	assert.Contains(t, got, "Ada")
	assert.Contains(t, got, "+1555")
}
