package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-companion/backend/internal/apperr"
	"github.com/vibe-companion/backend/internal/model/chat"
	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
	"github.com/vibe-companion/backend/internal/service/ai"
	"github.com/vibe-companion/backend/internal/service/storage"
)

type fakeGenerator struct {
	calls []ai.Request
	reply string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type fakeTranscriber struct {
	text string
	err  error
	got  speechmodel.TranscribeRequest
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req speechmodel.TranscribeRequest) (*speechmodel.Transcript, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.Transcript{Text: f.text}, nil
}

type fakeSynthesizer struct {
	text string
	err  error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req speechmodel.SynthesizeRequest) (*speechmodel.Audio, error) {
	f.text = req.Text
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

type fakePublisher struct {
	name string
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, _ []byte, name, _ string) (string, error) {
	f.name = name
	if f.err != nil {
		return "", f.err
	}
	return storage.PublicURL("bucket", name), nil
}

type fakeAudio struct {
	data     []byte
	released int
}

func (f *fakeAudio) ReadAll() ([]byte, error) { return f.data, nil }
func (f *fakeAudio) Release() error           { f.released++; return nil }

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func TestTextTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "  **Hello** ji!  "}
	synth := &fakeSynthesizer{}
	pub := &fakePublisher{}
	g := New(Options{Generator: gen, Synthesizer: synth, Publisher: pub, Now: fixedNow})

	resp, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "hi", Personality: "mentor"})
	require.NoError(t, err)

	assert.Equal(t, "**Hello** ji!", resp.Response)
	assert.Nil(t, resp.Transcription)
	require.NotNil(t, resp.TTSAudioURL)
	assert.Equal(t, "https://storage.googleapis.com/bucket/tts-audio/tts_1700000000000.mp3", *resp.TTSAudioURL)
	assert.Equal(t, "Hello ji!", synth.text)
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "mentor", gen.calls[0].Personality)
	assert.False(t, gen.calls[0].Voice)
}

func TestTextTurnValidation(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    error
	}{
		{"empty", "", ErrInvalidMessage},
		{"whitespace", "   \n", ErrInvalidMessage},
		{"too long", strings.Repeat("a", 1001), ErrMessageTooLong},
		{"too long multibyte", strings.Repeat("न", 1001), ErrMessageTooLong},
		{"emoji counted as surrogate pairs", strings.Repeat("😀", 501), ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: "x"}
			g := New(Options{Generator: gen})

			_, err := g.TextTurn(context.Background(), chat.TextRequest{Message: tt.message})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperr.InvalidInput, apperr.Classify(err))
			assert.Empty(t, gen.calls)
		})
	}

	g := New(Options{Generator: &fakeGenerator{reply: "ok"}})
	_, err := g.TextTurn(context.Background(), chat.TextRequest{Message: strings.Repeat("न", 1000)})
	assert.NoError(t, err)
}

func TestAudioFailuresDegrade(t *testing.T) {
	tests := []struct {
		name  string
		synth *fakeSynthesizer
		pub   *fakePublisher
	}{
		{"synthesis fails", &fakeSynthesizer{err: errors.New("tts down")}, &fakePublisher{}},
		{"publish fails", &fakeSynthesizer{}, &fakePublisher{err: storage.ErrStorageUnavailable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Options{Generator: &fakeGenerator{reply: "hello"}, Synthesizer: tt.synth, Publisher: tt.pub})

			resp, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "hi"})
			require.NoError(t, err)
			assert.Equal(t, "hello", resp.Response)
			assert.Nil(t, resp.TTSAudioURL)
		})
	}
}

func TestGenerationErrorIsClassified(t *testing.T) {
	g := New(Options{Generator: &fakeGenerator{err: errors.New("quota exceeded for model")}})

	_, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "hi"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.QuotaExceeded, appErr.Kind)
	assert.Equal(t, "AI response generation failed", appErr.Title)
	assert.Equal(t, "Service quota exceeded. Please try again later.", appErr.Message)
}

func TestVoiceTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "Sure!"}
	stt := &fakeTranscriber{text: " what is gravity "}
	audio := &fakeAudio{data: []byte("webm")}
	g := New(Options{Generator: gen, Transcriber: stt, Synthesizer: &fakeSynthesizer{}, Publisher: &fakePublisher{}, STTLanguage: "en-US", Now: fixedNow})

	resp, err := g.VoiceTurn(context.Background(), VoiceInput{Audio: audio, ContentType: "audio/webm"})
	require.NoError(t, err)

	require.NotNil(t, resp.Transcription)
	assert.Equal(t, "what is gravity", *resp.Transcription)
	assert.Equal(t, "Sure!", resp.Response)
	assert.NotNil(t, resp.TTSAudioURL)
	assert.Equal(t, 1, audio.released)
	assert.Equal(t, "en-US", stt.got.Language)
	require.Len(t, gen.calls, 1)
	assert.True(t, gen.calls[0].Voice)
}

func TestVoiceTurnEmptyTranscript(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	audio := &fakeAudio{data: []byte("silence")}
	g := New(Options{Generator: gen, Transcriber: &fakeTranscriber{text: "  "}, Synthesizer: &fakeSynthesizer{}})

	resp, err := g.VoiceTurn(context.Background(), VoiceInput{Audio: audio})
	require.NoError(t, err)

	require.NotNil(t, resp.Transcription)
	assert.Equal(t, "", *resp.Transcription)
	assert.Equal(t, "I couldn't hear what you said. Could you please try again?", resp.Response)
	assert.Nil(t, resp.TTSAudioURL)
	assert.Empty(t, gen.calls)
	assert.Equal(t, 1, audio.released)
}

func TestVoiceTurnReleasesOnFailure(t *testing.T) {
	audio := &fakeAudio{}
	g := New(Options{Transcriber: &fakeTranscriber{err: errors.New("connection refused")}})

	_, err := g.VoiceTurn(context.Background(), VoiceInput{Audio: audio})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Speech recognition failed", appErr.Title)
	assert.Equal(t, 1, audio.released)

	noSTT := New(Options{})
	audio = &fakeAudio{}
	_, err = noSTT.VoiceTurn(context.Background(), VoiceInput{Audio: audio})
	assert.ErrorIs(t, err, ErrVoiceDisabled)
	assert.Equal(t, 1, audio.released)
}

func TestDemoMode(t *testing.T) {
	g := New(Options{Transcriber: &fakeTranscriber{text: "hello"}})
	assert.True(t, g.DemoMode())

	resp, err := g.VoiceTurn(context.Background(), VoiceInput{Audio: &fakeAudio{}})
	require.NoError(t, err)
	assert.Equal(t, `I heard you say: "hello". I'm currently in demo mode, but I'm here to chat!`, resp.Response)
	assert.Nil(t, resp.TTSAudioURL)
}

func TestStreamTextFallsBackToGenerate(t *testing.T) {
	g := New(Options{Generator: &fakeGenerator{reply: "whole reply"}})

	var chunks []string
	reply, err := g.StreamText(context.Background(), chat.TextRequest{Message: "hi"}, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "whole reply", reply)
	assert.Equal(t, []string{"whole reply"}, chunks)

	_, err = g.StreamText(context.Background(), chat.TextRequest{Message: ""}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestValidateTextLimit(t *testing.T) {
	assert.NoError(t, ValidateText(strings.Repeat("न", 1000)))
	assert.NoError(t, ValidateText(strings.Repeat("😀", 500)))
	assert.ErrorIs(t, ValidateText(strings.Repeat("😀", 500)+"a"), ErrMessageTooLong)
}

type fakeHistory struct {
	msgs  []chat.Message
	err   error
	uid   string
	limit int
}

func (f *fakeHistory) Page(_ context.Context, uid, _ string, limit int) (chat.Page, error) {
	f.uid, f.limit = uid, limit
	if f.err != nil {
		return chat.Page{}, f.err
	}
	msgs := f.msgs
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return chat.Page{Messages: msgs}, nil
}

func transcript(n int) []chat.Message {
	msgs := make([]chat.Message, n)
	for i := range msgs {
		typ := chat.TypeUser
		if i%2 == 1 {
			typ = chat.TypeBot
		}
		msgs[i] = chat.Message{ID: strings.Repeat("m", i+1), Type: typ, Content: "turn " + strings.Repeat("i", i)}
	}
	return msgs
}

func TestTextTurnUsesSignedInHistory(t *testing.T) {
	msgs := append(transcript(14), chat.Message{ID: "cur", Type: chat.TypeUser, Content: "how are you"})
	hist := &fakeHistory{msgs: msgs}
	gen := &fakeGenerator{reply: "fine"}
	g := New(Options{Generator: gen, History: hist})

	_, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "how are you", UID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", hist.uid)
	assert.Equal(t, ai.HistoryLimit+1, hist.limit)
	require.Len(t, gen.calls, 1)
	got := gen.calls[0].History
	require.Len(t, got, ai.HistoryLimit)
	// The just-saved user message is the current turn, not context.
	assert.Equal(t, msgs[len(msgs)-2].ID, got[len(got)-1].ID)
}

func TestTextTurnHistoryContextIsOptional(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		hist := &fakeHistory{msgs: transcript(3)}
		gen := &fakeGenerator{reply: "ok"}
		g := New(Options{Generator: gen, History: hist})

		_, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "hi"})
		require.NoError(t, err)
		assert.Empty(t, hist.uid)
		assert.Nil(t, gen.calls[0].History)
	})

	t.Run("load failure", func(t *testing.T) {
		gen := &fakeGenerator{reply: "ok"}
		g := New(Options{Generator: gen, History: &fakeHistory{err: errors.New("firestore down")}})

		resp, err := g.TextTurn(context.Background(), chat.TextRequest{Message: "hi", UID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Response)
		assert.Nil(t, gen.calls[0].History)
	})
}

func TestVoiceTurnUsesSignedInHistory(t *testing.T) {
	hist := &fakeHistory{msgs: transcript(4)}
	gen := &fakeGenerator{reply: "ok"}
	g := New(Options{Generator: gen, Transcriber: &fakeTranscriber{text: "namaste"}, History: hist})

	_, err := g.VoiceTurn(context.Background(), VoiceInput{Audio: &fakeAudio{data: []byte("a")}, UID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "u2", hist.uid)
	assert.Len(t, gen.calls[0].History, 4)
}
