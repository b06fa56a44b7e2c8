package speech

import (
	"context"
	"fmt"
	"strings"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"

	speechmodel "github.com/vibe-companion/backend/internal/model/speech"
)

// GoogleOptions configures recognition and synthesis.
type GoogleOptions struct {
	Encoding    string // RecognitionConfig_AudioEncoding name, e.g. WEBM_OPUS
	SampleRate  int
	STTLanguage string
	TTSLanguage string
	TTSVoice    string
	TTSGender   string // SsmlVoiceGender name, e.g. FEMALE
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

type ttsSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleTranscriber uses Cloud Speech-to-Text synchronous recognition.
type GoogleTranscriber struct {
	client recognizer
	opts   GoogleOptions
}

// GoogleSynthesizer uses Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	client ttsSynthesizer
	opts   GoogleOptions
}

// NewGoogleProvider dials both Google clients with application default
// credentials.
func NewGoogleProvider(ctx context.Context, opts GoogleOptions) (*Provider, error) {
	sttClient, err := speechapi.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	ttsClient, err := texttospeech.NewClient(ctx)
	if err != nil {
		sttClient.Close()
		return nil, fmt.Errorf("create text-to-speech client: %w", err)
	}
	return &Provider{
		Name:        "google",
		Transcriber: &GoogleTranscriber{client: sttClient, opts: opts},
		Synthesizer: &GoogleSynthesizer{client: ttsClient, opts: opts},
		closers:     []func() error{sttClient.Close, ttsClient.Close},
	}, nil
}

// Transcribe joins the top alternative of every result with spaces.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (*speechmodel.Transcript, error) {
	language := req.Language
	if language == "" {
		language = g.opts.STTLanguage
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   recognitionEncoding(g.opts.Encoding),
			SampleRateHertz:            int32(g.opts.SampleRate),
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google recognize: %w", err)
	}

	var (
		parts      []string
		confidence float32
	)
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, alts[0].GetTranscript())
		if alts[0].GetConfidence() > confidence {
			confidence = alts[0].GetConfidence()
		}
	}

	return &speechmodel.Transcript{
		Text:       strings.TrimSpace(strings.Join(parts, " ")),
		Confidence: float64(confidence),
		Duration:   resp.GetTotalBilledTime().AsDuration(),
		RequestID:  fmt.Sprint(resp.GetRequestId()),
	}, nil
}

// Synthesize returns MP3 audio for req.Text.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req speechmodel.SynthesizeRequest) (*speechmodel.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	language := req.Language
	if language == "" {
		language = g.opts.TTSLanguage
	}
	voice := req.Voice
	if voice == "" {
		voice = g.opts.TTSVoice
	}

	audioConfig := &texttospeechpb.AudioConfig{AudioEncoding: texttospeechpb.AudioEncoding_MP3}
	if req.Speed > 0 {
		audioConfig.SpeakingRate = float64(req.Speed)
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: language,
			Name:         voice,
			SsmlGender:   voiceGender(g.opts.TTSGender),
		},
		AudioConfig: audioConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("google synthesize: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, fmt.Errorf("google synthesize: empty audio")
	}

	return &speechmodel.Audio{
		Data:        resp.GetAudioContent(),
		Format:      "mp3",
		ContentType: "audio/mpeg",
	}, nil
}

func recognitionEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[strings.ToUpper(name)]; ok {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_WEBM_OPUS
}

func voiceGender(name string) texttospeechpb.SsmlVoiceGender {
	if v, ok := texttospeechpb.SsmlVoiceGender_value[strings.ToUpper(name)]; ok {
		return texttospeechpb.SsmlVoiceGender(v)
	}
	return texttospeechpb.SsmlVoiceGender_FEMALE
}
