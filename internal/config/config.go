package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	App       AppConfig
	AI        AIConfig
	Speech    SpeechConfig
	Storage   StorageConfig
	Firebase  FirebaseConfig
	History   HistoryConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Janitor   JanitorConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	app := loadAppConfig()

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	history, err := loadHistoryConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	logging, err := loadLoggingConfig()
	if err != nil {
		return nil, err
	}

	janitor, err := loadJanitorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		App:       app,
		AI:        ai,
		Speech:    speech,
		Storage:   storage,
		Firebase:  FirebaseConfig{ProjectID: strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID"))},
		History:   history,
		RateLimit: rateLimit,
		Logging:   logging,
		Janitor:   janitor,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// AppConfig 描述各处理器共享的部署级配置。
type AppConfig struct {
	Environment   string
	FrontendURL   string
	PublicBaseURL string
	UploadsDir    string
	TempDir       string
	// GoogleCredentials 为服务账号路径，由健康检查上报。
	GoogleCredentials string
}

// Production 表示是否需要向客户端隐藏错误细节。
func (c AppConfig) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func loadAppConfig() AppConfig {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = getEnvOrDefault("NODE_ENV", "development")
	}
	return AppConfig{
		Environment:       env,
		FrontendURL:       getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		PublicBaseURL:     strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:5000"), "/"),
		UploadsDir:        getEnvOrDefault("UPLOADS_DIR", "uploads"),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		GoogleCredentials: strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}
}

// 大模型提供方名称。
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderArk        = "ark"
	ProviderGoogle     = "google"
	ProviderVolcengine = "volcengine"
	ProviderDemo       = "demo"
	ProviderNone       = "none"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	MaxTokens    *int
	Ark          ArkConfig
}

// ArkConfig 描述火山方舟模型配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	arkMaxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:     strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER"))),
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY")),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		MaxTokens:    maxTokens,
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   arkMaxTokens,
		},
	}

	if cfg.Provider == "" {
		cfg.Provider = cfg.detectProvider()
	}
	switch cfg.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderArk, ProviderDemo:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", cfg.Provider)
	}
	return cfg, nil
}

func (c AIConfig) detectProvider() string {
	switch {
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	case c.Ark.Enabled():
		return ProviderArk
	default:
		return ProviderDemo
	}
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	Provider string

	// Google Cloud 语音识别与合成
	STTEncoding     string
	STTSampleRate   int
	STTLanguage     string
	TTSLanguage     string
	TTSVoice        string
	TTSGender       string
	GoogleEnabled   bool
	OpenAIAPIKey    string
	OpenAITTSVoice  string
	OpenAITTSModel  string
	OpenAISTTModel  string
	Volcengine      VolcengineConfig
	SynthesisFormat string
}

// VolcengineConfig 火山引擎语音配置
type VolcengineConfig struct {
	AppID          string
	AccessToken    string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	Timeout        time.Duration
}

// Enabled 表示火山引擎凭证是否齐全。
func (c VolcengineConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	sampleRate := 48000
	if override, err := parseOptionalIntEnv("STT_SAMPLE_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	googleEnabled, err := parseBoolEnv("GOOGLE_SPEECH_ENABLED", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "")
	if err != nil {
		return SpeechConfig{}, err
	}

	cfg := SpeechConfig{
		Provider:        strings.ToLower(strings.TrimSpace(os.Getenv("SPEECH_PROVIDER"))),
		STTEncoding:     getEnvOrDefault("STT_ENCODING", "WEBM_OPUS"),
		STTSampleRate:   sampleRate,
		STTLanguage:     getEnvOrDefault("STT_LANGUAGE", "en-US"),
		TTSLanguage:     getEnvOrDefault("TTS_LANGUAGE", "en-IN"),
		TTSVoice:        getEnvOrDefault("TTS_VOICE", "en-IN-Wavenet-E"),
		TTSGender:       getEnvOrDefault("TTS_GENDER", "FEMALE"),
		GoogleEnabled:   googleEnabled,
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAITTSVoice:  getEnvOrDefault("OPENAI_TTS_VOICE", "nova"),
		OpenAITTSModel:  getEnvOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		OpenAISTTModel:  getEnvOrDefault("OPENAI_STT_MODEL", "whisper-1"),
		SynthesisFormat: "mp3",
		Volcengine: VolcengineConfig{
			AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
			AccessToken:    accessToken,
			ConcurrentMode: concurrent,
			ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
			TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", "en_female_amy_jupiter_bigtts"),
			TTSSpeed:       ttsSpeed,
			TTSVolume:      ttsVolume,
			Timeout:        timeout,
		},
	}

	if cfg.Provider == "" {
		cfg.Provider = cfg.detectProvider()
	}
	switch cfg.Provider {
	case ProviderGoogle, ProviderOpenAI, ProviderVolcengine, ProviderNone:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value %q", cfg.Provider)
	}
	return cfg, nil
}

func (c SpeechConfig) detectProvider() string {
	switch {
	case c.GoogleEnabled:
		return ProviderGoogle
	case c.Volcengine.Enabled():
		return ProviderVolcengine
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	default:
		return ProviderNone
	}
}

// StorageConfig 描述 TTS 音频的对象存储配置。
type StorageConfig struct {
	Bucket string
	// LocalFallback 在未配置存储桶或上传失败时改为写入本地 uploads 目录。
	LocalFallback bool
}

func loadStorageConfig() (StorageConfig, error) {
	fallback, err := parseBoolEnv("LOCAL_AUDIO_FALLBACK", false)
	if err != nil {
		return StorageConfig{}, err
	}
	return StorageConfig{
		Bucket:        strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_STORAGE_BUCKET")),
		LocalFallback: fallback,
	}, nil
}

// FirebaseConfig 描述 Firebase 项目配置。
type FirebaseConfig struct {
	ProjectID string
}

// ResolveProjectID 返回配置的项目 ID，在 Google Cloud 上运行时回退到 GCE 元数据服务。
func (c FirebaseConfig) ResolveProjectID(ctx context.Context) (string, error) {
	if c.ProjectID != "" {
		return c.ProjectID, nil
	}
	if !metadata.OnGCE() {
		return "", nil
	}
	id, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve project id from metadata: %w", err)
	}
	return id, nil
}

// 历史存储后端。
const (
	HistoryFirestore = "firestore"
	HistorySQLite    = "sqlite"
	HistoryMemory    = "memory"
)

// HistoryConfig 描述会话历史存储。
type HistoryConfig struct {
	Backend    string
	SQLitePath string
}

func loadHistoryConfig() (HistoryConfig, error) {
	cfg := HistoryConfig{
		Backend:    strings.ToLower(strings.TrimSpace(os.Getenv("HISTORY_BACKEND"))),
		SQLitePath: getEnvOrDefault("SQLITE_PATH", "vibe.db"),
	}
	if cfg.Backend == "" {
		switch {
		case os.Getenv("FIREBASE_PROJECT_ID") != "":
			cfg.Backend = HistoryFirestore
		case os.Getenv("SQLITE_PATH") != "":
			cfg.Backend = HistorySQLite
		default:
			cfg.Backend = HistoryMemory
		}
	}
	switch cfg.Backend {
	case HistoryFirestore, HistorySQLite, HistoryMemory:
		return cfg, nil
	default:
		return HistoryConfig{}, fmt.Errorf("invalid HISTORY_BACKEND value %q", cfg.Backend)
	}
}

// RateLimitConfig 描述按 IP 的限流窗口。
type RateLimitConfig struct {
	Window       time.Duration
	General      int
	Conversation int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	window, err := parseDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return RateLimitConfig{}, err
	}
	cfg := RateLimitConfig{Window: window, General: 100, Conversation: 50}
	if v, err := parseOptionalIntEnv("RATE_LIMIT_GENERAL"); err != nil {
		return RateLimitConfig{}, err
	} else if v != nil {
		cfg.General = *v
	}
	if v, err := parseOptionalIntEnv("RATE_LIMIT_CONVERSATION"); err != nil {
		return RateLimitConfig{}, err
	} else if v != nil {
		cfg.Conversation = *v
	}
	return cfg, nil
}

// LoggingConfig 描述日志输出。
type LoggingConfig struct {
	Level        string
	Format       string
	CloudLogging bool
}

func loadLoggingConfig() (LoggingConfig, error) {
	cloud, err := parseBoolEnv("CLOUD_LOGGING", false)
	if err != nil {
		return LoggingConfig{}, err
	}
	return LoggingConfig{
		Level:        getEnvOrDefault("LOG_LEVEL", "info"),
		Format:       strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		CloudLogging: cloud,
	}, nil
}

// JanitorConfig 描述临时文件清理任务。
type JanitorConfig struct {
	Schedule string
	MaxAge   time.Duration
}

func loadJanitorConfig() (JanitorConfig, error) {
	maxAge, err := parseDurationEnv("JANITOR_MAX_AGE", time.Hour)
	if err != nil {
		return JanitorConfig{}, err
	}
	return JanitorConfig{
		Schedule: getEnvOrDefault("JANITOR_SCHEDULE", "@every 15m"),
		MaxAge:   maxAge,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	// 纯数字按秒处理。
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
