package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain", "Namaste, how are you?", "Namaste, how are you?"},
		{"emphasis", "This is **very** _important_.", "This is very important."},
		{"link", "Read [the docs](https://example.com) first.", "Read the docs first."},
		{"list", "- one\n- two", "one two"},
		{"entities", "Tom & Jerry", "Tom & Jerry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestInferAudioFormat(t *testing.T) {
	assert.Equal(t, "webm", inferAudioFormat("audio/webm;codecs=opus"))
	assert.Equal(t, "wav", inferAudioFormat("audio/x-wav"))
	assert.Equal(t, "mp3", inferAudioFormat("audio/mpeg"))
	assert.Equal(t, "ogg", inferAudioFormat("audio/ogg"))
	assert.Equal(t, "webm", inferAudioFormat(""))
}
