package speech

import (
	"context"
	"errors"

	"github.com/vibe-companion/backend/internal/config"
)

// NewProvider builds the provider selected by cfg.Provider. It returns nil
// with no error when speech is disabled ("none").
func NewProvider(ctx context.Context, cfg config.SpeechConfig) (*Provider, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		return NewGoogleProvider(ctx, GoogleOptions{
			Encoding:    cfg.STTEncoding,
			SampleRate:  cfg.STTSampleRate,
			STTLanguage: cfg.STTLanguage,
			TTSLanguage: cfg.TTSLanguage,
			TTSVoice:    cfg.TTSVoice,
			TTSGender:   cfg.TTSGender,
		})
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai speech provider")
		}
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:   cfg.OpenAIAPIKey,
			STTModel: cfg.OpenAISTTModel,
			TTSModel: cfg.OpenAITTSModel,
			TTSVoice: cfg.OpenAITTSVoice,
		}), nil
	case config.ProviderVolcengine:
		v := cfg.Volcengine
		return NewVolcengineProvider(VolcengineOptions{
			AppID:          v.AppID,
			AccessToken:    v.AccessToken,
			ConcurrentMode: v.ConcurrentMode,
			ASRLanguage:    v.ASRLanguage,
			TTSVoice:       v.TTSVoice,
			TTSSpeed:       v.TTSSpeed,
			TTSVolume:      v.TTSVolume,
			Timeout:        v.Timeout,
		})
	default:
		return nil, nil
	}
}
