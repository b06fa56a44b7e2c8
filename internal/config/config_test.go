package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "NODE_ENV", "AI_PROVIDER", "GOOGLE_GENERATIVE_AI_API_KEY",
		"OPENAI_API_KEY", "ARK_API_KEY", "ARK_MODEL", "ARK_ACCESS_KEY", "ARK_SECRET_KEY",
		"SPEECH_PROVIDER", "GOOGLE_APPLICATION_CREDENTIALS", "GOOGLE_SPEECH_ENABLED",
		"SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY", "HISTORY_BACKEND",
		"FIREBASE_PROJECT_ID", "SQLITE_PATH", "RATE_LIMIT_GENERAL", "RATE_LIMIT_WINDOW",
		"SHUTDOWN_TIMEOUT", "GOOGLE_CLOUD_STORAGE_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.False(t, cfg.App.Production())
	assert.Equal(t, "http://localhost:3000", cfg.App.FrontendURL)
	assert.Equal(t, ProviderDemo, cfg.AI.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.GeminiModel)
	assert.Equal(t, ProviderNone, cfg.Speech.Provider)
	assert.Equal(t, "WEBM_OPUS", cfg.Speech.STTEncoding)
	assert.Equal(t, 48000, cfg.Speech.STTSampleRate)
	assert.Equal(t, "en-IN-Wavenet-E", cfg.Speech.TTSVoice)
	assert.Equal(t, HistoryMemory, cfg.History.Backend)
	assert.Equal(t, 100, cfg.RateLimit.General)
	assert.Equal(t, 50, cfg.RateLimit.Conversation)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
}

func TestLoadDetectsProviders(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_GENERATIVE_AI_API_KEY", "key")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/secrets/sa.json")
	t.Setenv("FIREBASE_PROJECT_ID", "vibe-dev")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, ProviderGoogle, cfg.Speech.Provider)
	assert.Equal(t, HistoryFirestore, cfg.History.Backend)
	assert.True(t, cfg.App.Production())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "80 80"},
		{"AI_PROVIDER", "claude"},
		{"SPEECH_PROVIDER", "whisperx"},
		{"HISTORY_BACKEND", "postgres"},
		{"RATE_LIMIT_GENERAL", "many"},
		{"SHUTDOWN_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseDurationEnvAcceptsSeconds(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "3")
	d, err := parseDurationEnv("SHUTDOWN_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
}

func TestArkEnabled(t *testing.T) {
	assert.False(t, ArkConfig{}.Enabled())
	assert.True(t, ArkConfig{Model: "ep-1", APIKey: "k"}.Enabled())
	assert.True(t, ArkConfig{Model: "ep-1", AccessKey: "a", SecretKey: "s"}.Enabled())
	assert.False(t, ArkConfig{APIKey: "k"}.Enabled())
}
