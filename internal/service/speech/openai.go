package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
)

// OpenAIOptions configures Whisper and TTS models.
type OpenAIOptions struct {
	APIKey   string
	STTModel string
	TTSModel string
	TTSVoice string
	Language string
}

type openAIAudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAISpeech implements both Transcriber and Synthesizer.
type OpenAISpeech struct {
	client openAIAudioClient
	opts   OpenAIOptions
}

// NewOpenAIProvider builds a provider backed by the OpenAI audio endpoints.
func NewOpenAIProvider(opts OpenAIOptions) *Provider {
	s := &OpenAISpeech{client: openai.NewClient(opts.APIKey), opts: opts}
	return &Provider{Name: "openai", Transcriber: s, Synthesizer: s}
}

// Transcribe sends the recording to Whisper.
func (s *OpenAISpeech) Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (*speechmodel.Transcript, error) {
	language := req.Language
	if language == "" {
		language = s.opts.Language
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.opts.STTModel,
		Reader:   bytes.NewReader(req.Audio),
		FilePath: "recording." + inferAudioFormat(req.ContentType),
		Language: isoLanguage(language),
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	return &speechmodel.Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}

// Synthesize requests MP3 speech.
func (s *OpenAISpeech) Synthesize(ctx context.Context, req speechmodel.SynthesizeRequest) (*speechmodel.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	voice := req.Voice
	if voice == "" {
		voice = s.opts.TTSVoice
	}
	speed := float64(req.Speed)
	if speed <= 0 {
		speed = 1.0
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.opts.TTSModel),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("openai speech: empty audio")
	}
	return &speechmodel.Audio{Data: data, Format: "mp3", ContentType: "audio/mpeg"}, nil
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code Whisper expects.
func isoLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
