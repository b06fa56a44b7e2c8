// Package conversation runs one chat turn: speech-to-text, reply generation,
// speech synthesis and audio publishing.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/vibe-companion/backend/internal/apperr"
	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/model/chat"
	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
	"github.com/vibe-companion/backend/internal/service/ai"
	"github.com/vibe-companion/backend/internal/service/speech"
	"github.com/vibe-companion/backend/internal/service/storage"
)

// Validation and availability errors returned before any upstream call.
var (
	ErrInvalidMessage = apperr.New(apperr.InvalidInput, "Invalid message", "Please provide a valid message.")
	ErrMessageTooLong = apperr.New(apperr.InvalidInput, "Message too long", "Message must be less than 1000 characters.")
	ErrVoiceDisabled  = apperr.New(apperr.ServiceUnavailable, "Speech recognition service unavailable", "Voice features are temporarily unavailable. Please try text input.")
)

// Error titles for upstream failures.
const (
	titleSTT = "Speech recognition failed"
	titleAI  = "AI response generation failed"
)

// AudioSource is a staged recording. Release is called exactly once per turn.
type AudioSource interface {
	ReadAll() ([]byte, error)
	Release() error
}

// VoiceInput is one recorded turn.
type VoiceInput struct {
	Audio       AudioSource
	ContentType string
	Personality string
	Language    string
	UID         string
}

// HistoryReader loads a user's recent transcript. history.Store satisfies it.
type HistoryReader interface {
	Page(ctx context.Context, uid, cursor string, limit int) (chat.Page, error)
}

// AudioResult is the outcome of the best-effort synthesis step. A nil URL
// with a non-nil Err means the reply is served without audio.
type AudioResult struct {
	URL *string
	Err error
}

// Options wires the gateway's collaborators. Transcriber and Synthesizer may
// be nil when no speech provider is configured.
type Options struct {
	Generator   ai.Generator
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Publisher   storage.Publisher
	// History, when set, feeds a signed-in user's recent messages to the
	// generator as context.
	History     HistoryReader
	STTLanguage string
	Now         func() time.Time
}

// Gateway orchestrates conversation turns.
type Gateway struct {
	generator   ai.Generator
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	publisher   storage.Publisher
	history     HistoryReader
	sttLanguage string
	now         func() time.Time
}

// New builds a gateway. A nil generator falls back to demo replies and a nil
// publisher to storage.Unavailable.
func New(opts Options) *Gateway {
	g := &Gateway{
		generator:   opts.Generator,
		transcriber: opts.Transcriber,
		synthesizer: opts.Synthesizer,
		publisher:   opts.Publisher,
		history:     opts.History,
		sttLanguage: opts.STTLanguage,
		now:         opts.Now,
	}
	if g.generator == nil {
		g.generator = ai.Demo{}
	}
	if g.publisher == nil {
		g.publisher = storage.Unavailable{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// VoiceEnabled reports whether speech-to-text is configured.
func (g *Gateway) VoiceEnabled() bool { return g.transcriber != nil }

// AudioEnabled reports whether replies can carry synthesized audio.
func (g *Gateway) AudioEnabled() bool { return g.synthesizer != nil }

// DemoMode reports whether replies come from the demo generator.
func (g *Gateway) DemoMode() bool { return ai.IsDemo(g.generator) }

// ValidateText checks a text message without calling any upstream service.
func ValidateText(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrInvalidMessage
	}
	// Length is counted in UTF-16 code units, as browsers count it.
	if len(utf16.Encode([]rune(message))) > chat.MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// TextTurn answers a typed message.
func (g *Gateway) TextTurn(ctx context.Context, req chat.TextRequest) (*chat.TurnResponse, error) {
	if err := ValidateText(req.Message); err != nil {
		return nil, err
	}

	reply, err := g.generate(ctx, ai.Request{
		Message:     req.Message,
		Personality: req.Personality,
		Language:    req.Language,
		History:     g.recent(ctx, req.UID, req.Message),
	})
	if err != nil {
		return nil, err
	}

	audio := g.synthesize(ctx, reply)
	return &chat.TurnResponse{Response: reply, TTSAudioURL: audio.URL}, nil
}

// VoiceTurn transcribes a recording and answers it. The recording is
// released once transcription has been attempted.
func (g *Gateway) VoiceTurn(ctx context.Context, in VoiceInput) (*chat.TurnResponse, error) {
	logger := logging.FromContext(ctx)
	transcript, err := g.transcribe(ctx, in)
	if relErr := in.Audio.Release(); relErr != nil {
		logger.Warn("failed to clean up uploaded file", slog.Any(logging.ErrorField, relErr))
	}
	if err != nil {
		return nil, err
	}

	if transcript == "" {
		empty := ""
		return &chat.TurnResponse{Transcription: &empty, Response: chat.ClarificationText}, nil
	}

	reply, err := g.generate(ctx, ai.Request{
		Message:     transcript,
		Personality: in.Personality,
		Language:    in.Language,
		History:     g.recent(ctx, in.UID, transcript),
		Voice:       true,
	})
	if err != nil {
		return nil, err
	}

	audio := g.synthesize(ctx, reply)
	return &chat.TurnResponse{Transcription: &transcript, Response: reply, TTSAudioURL: audio.URL}, nil
}

// StreamText streams the reply to a typed message. No audio is produced.
func (g *Gateway) StreamText(ctx context.Context, req chat.TextRequest, onChunk func(string) error) (string, error) {
	if err := ValidateText(req.Message); err != nil {
		return "", err
	}
	r := ai.Request{
		Message:     req.Message,
		Personality: req.Personality,
		Language:    req.Language,
		History:     g.recent(ctx, req.UID, req.Message),
	}

	streamer, ok := g.generator.(ai.Streamer)
	if !ok {
		reply, err := g.generate(ctx, r)
		if err != nil {
			return "", err
		}
		return reply, onChunk(reply)
	}

	reply, err := streamer.Stream(ctx, r, onChunk)
	if err != nil {
		logging.FromContext(ctx).Error("ai stream failed", slog.Any(logging.ErrorField, err))
		return "", apperr.Wrap(err, titleAI)
	}
	return reply, nil
}

func (g *Gateway) transcribe(ctx context.Context, in VoiceInput) (string, error) {
	if g.transcriber == nil {
		return "", ErrVoiceDisabled
	}
	data, err := in.Audio.ReadAll()
	if err != nil {
		logging.FromContext(ctx).Error("read staged audio failed", slog.Any(logging.ErrorField, err))
		return "", apperr.Wrap(err, titleSTT)
	}

	start := g.now()
	transcript, err := g.transcriber.Transcribe(ctx, speechmodel.TranscribeRequest{
		Audio:       data,
		ContentType: in.ContentType,
		Language:    g.sttLanguage,
	})
	if err != nil {
		logging.FromContext(ctx).Error("speech-to-text failed",
			slog.Int("bytes", len(data)), slog.Any(logging.ErrorField, err))
		return "", apperr.Wrap(err, titleSTT)
	}

	text := strings.TrimSpace(transcript.Text)
	logging.FromContext(ctx).Info("speech transcribed",
		slog.Int("chars", len(text)), slog.Duration("took", g.now().Sub(start)))
	return text, nil
}

// recent returns uid's latest messages for the prompt. Anonymous turns and
// load failures get no context. The client saves the user message before
// sending it, so a trailing copy of message is dropped.
func (g *Gateway) recent(ctx context.Context, uid, message string) []chat.Message {
	if g.history == nil || uid == "" {
		return nil
	}
	page, err := g.history.Page(ctx, uid, "", ai.HistoryLimit+1)
	if err != nil {
		logging.FromContext(ctx).Warn("history context unavailable", slog.Any(logging.ErrorField, err))
		return nil
	}
	msgs := page.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Type == chat.TypeUser &&
		strings.TrimSpace(msgs[n-1].Content) == strings.TrimSpace(message) {
		msgs = msgs[:n-1]
	}
	if len(msgs) > ai.HistoryLimit {
		msgs = msgs[len(msgs)-ai.HistoryLimit:]
	}
	return msgs
}

func (g *Gateway) generate(ctx context.Context, req ai.Request) (string, error) {
	reply, err := g.generator.Generate(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Error("ai generation failed", slog.Any(logging.ErrorField, err))
		return "", apperr.Wrap(err, titleAI)
	}
	return strings.TrimSpace(reply), nil
}

// synthesize never fails the turn. Errors are logged and reported in the
// returned AudioResult.
func (g *Gateway) synthesize(ctx context.Context, reply string) AudioResult {
	if g.synthesizer == nil {
		return AudioResult{}
	}
	logger := logging.FromContext(ctx)

	text := speech.PlainText(reply)
	if text == "" {
		return AudioResult{Err: speech.ErrEmptyText}
	}

	audio, err := g.synthesizer.Synthesize(ctx, speechmodel.SynthesizeRequest{Text: text})
	if err != nil {
		logger.Warn("TTS failed, continuing without audio", slog.Any(logging.ErrorField, err))
		return AudioResult{Err: err}
	}

	contentType := audio.ContentType
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	url, err := g.publisher.Publish(ctx, audio.Data, storage.FileName(g.now()), contentType)
	if err != nil {
		logger.Warn("audio publish failed, continuing without audio", slog.Any(logging.ErrorField, err))
		return AudioResult{Err: err}
	}
	return AudioResult{URL: &url}
}
