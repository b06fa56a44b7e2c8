package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"

	"github.com/vibe-companion/backend/internal/config"
	"github.com/vibe-companion/backend/internal/handler"
	"github.com/vibe-companion/backend/internal/handler/health"
	"github.com/vibe-companion/backend/internal/handler/realtime"
	"github.com/vibe-companion/backend/internal/janitor"
	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/service/ai"
	"github.com/vibe-companion/backend/internal/service/conversation"
	"github.com/vibe-companion/backend/internal/service/history"
	"github.com/vibe-companion/backend/internal/service/profile"
	"github.com/vibe-companion/backend/internal/service/speech"
	"github.com/vibe-companion/backend/internal/service/storage"
	"github.com/vibe-companion/backend/internal/store/sqlitedb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", slog.Any(logging.ErrorField, err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("shutdown cleanup failed", slog.Any(logging.ErrorField, err))
			}
		}
	}()

	projectID, err := cfg.Firebase.ResolveProjectID(ctx)
	if err != nil {
		logger.Warn("firebase project id unavailable", slog.Any(logging.ErrorField, err))
	}

	var accessLog *log.Logger
	if cfg.Logging.CloudLogging && projectID != "" {
		stdLogger, closeLog, err := logging.NewCloudStandardLogger(ctx, projectID, "vibe-api-access")
		if err != nil {
			logger.Warn("cloud logging unavailable, using stdout only", slog.Any(logging.ErrorField, err))
		} else {
			accessLog = stdLogger
			closers = append(closers, closeLog)
		}
	}

	generator, aiName := buildGenerator(ctx, cfg.AI, logger)

	speechProvider, err := speech.NewProvider(ctx, cfg.Speech)
	if err != nil {
		// Text turns still work without speech.
		logger.Warn("speech provider unavailable, voice features disabled",
			slog.String("provider", cfg.Speech.Provider), slog.Any(logging.ErrorField, err))
		speechProvider = nil
	}
	speechName := config.ProviderNone
	gwOpts := conversation.Options{Generator: generator, STTLanguage: cfg.Speech.STTLanguage}
	if speechProvider != nil {
		closers = append(closers, speechProvider.Close)
		speechName = speechProvider.Name
		gwOpts.Transcriber = speechProvider.Transcriber
		gwOpts.Synthesizer = speechProvider.Synthesizer
	}

	publisher, storageName, closeStorage := buildPublisher(ctx, cfg, logger)
	if closeStorage != nil {
		closers = append(closers, closeStorage)
	}
	gwOpts.Publisher = publisher

	var app *firebase.App
	if projectID != "" {
		app, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
		if err != nil {
			logger.Warn("firebase init failed", slog.Any(logging.ErrorField, err))
			app = nil
		}
	}

	var verifier middleware.TokenVerifier
	if app != nil {
		authClient, err := app.Auth(ctx)
		if err != nil {
			logger.Warn("firebase auth unavailable", slog.Any(logging.ErrorField, err))
		} else {
			verifier = authClient
		}
	}

	historyStore, profiles, historyName, closeStore, err := buildStores(ctx, cfg.History, app)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	gwOpts.History = historyStore
	gateway := conversation.New(gwOpts)

	generalLimiter := middleware.NewRateLimiter(cfg.RateLimit.General, cfg.RateLimit.Window)
	conversationLimiter := middleware.NewRateLimiter(cfg.RateLimit.Conversation, cfg.RateLimit.Window)
	go generalLimiter.Run(ctx)
	go conversationLimiter.Run(ctx)

	sweeper := janitor.New(cfg.Janitor.MaxAge, logger,
		janitor.Target{Dir: cfg.App.TempDir, Pattern: "vibe-upload-*"},
		janitor.Target{Dir: cfg.App.UploadsDir, Pattern: "tts_*"},
	)
	go func() {
		if err := sweeper.Run(ctx, cfg.Janitor.Schedule); err != nil {
			logger.Warn("janitor disabled", slog.Any(logging.ErrorField, err))
		}
	}()

	// The socket route only runs full turns against a real model.
	var realtimeTurner realtime.TextTurner
	if !gateway.DemoMode() {
		realtimeTurner = gateway
	}

	router := handler.NewRouter(handler.Deps{
		Logger:       logger,
		AccessLog:    accessLog,
		Conversation: gateway,
		Realtime:     realtimeTurner,
		History:      historyStore,
		Profiles:     profiles,
		Verifier:     verifier,
		Health: health.Info{
			Environment: cfg.App.Environment,
			StartedAt:   time.Now(),
			Services: health.Services{
				GoogleCloud:  cfg.App.GoogleCredentials != "",
				Gemini:       cfg.AI.GeminiAPIKey != "",
				Firebase:     projectID != "",
				CloudStorage: cfg.Storage.Bucket != "",
			},
			Providers: health.Providers{
				AI:      aiName,
				Speech:  speechName,
				Storage: storageName,
				History: historyName,
			},
		},
		FrontendURL:         cfg.App.FrontendURL,
		UploadsDir:          cfg.App.UploadsDir,
		TempDir:             cfg.App.TempDir,
		ErrorDetail:         !cfg.App.Production(),
		GeneralLimiter:      generalLimiter,
		ConversationLimiter: conversationLimiter,
	})

	logger.Info("providers configured",
		slog.String("ai", aiName),
		slog.String("speech", speechName),
		slog.String("storage", storageName),
		slog.String("history", historyName),
		slog.Bool("auth", verifier != nil),
	)

	return startServer(ctx, cfg.Server, router, logger)
}

func buildGenerator(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (ai.Generator, string) {
	maxTokens := 0
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	var (
		gen ai.Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		gen, err = ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, maxTokens)
	case config.ProviderOpenAI:
		gen, err = ai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, maxTokens)
	case config.ProviderArk:
		chatModel, modelErr := cfg.Ark.NewChatModel(ctx)
		if modelErr != nil {
			err = modelErr
			break
		}
		gen, err = ai.NewChainGenerator(ctx, chatModel)
	default:
		logger.Info("no language model configured, running in demo mode")
		return ai.Demo{}, config.ProviderDemo
	}
	if err != nil {
		logger.Warn("failed to initialize AI provider, falling back to demo mode",
			slog.String("provider", cfg.Provider), slog.Any(logging.ErrorField, err))
		return ai.Demo{}, config.ProviderDemo
	}
	return gen, cfg.Provider
}

func buildPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Publisher, string, func() error) {
	var (
		primary storage.Publisher = storage.Unavailable{}
		name                      = "none"
		closer  func() error
	)
	if cfg.Storage.Bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Warn("cloud storage unavailable", slog.Any(logging.ErrorField, err))
		} else {
			primary = storage.NewGCSPublisher(client, cfg.Storage.Bucket)
			name = "gcs"
			closer = client.Close
		}
	}
	if !cfg.Storage.LocalFallback {
		return primary, name, closer
	}

	local := storage.Local{Dir: cfg.App.UploadsDir, BaseURL: cfg.App.PublicBaseURL}
	if name == "none" {
		return local, "local", closer
	}
	return storage.Fallback{Primary: primary, Secondary: local}, name + "+local", closer
}

func buildStores(ctx context.Context, cfg config.HistoryConfig, app *firebase.App) (history.Store, profile.Repository, string, func() error, error) {
	switch cfg.Backend {
	case config.HistoryFirestore:
		if app == nil {
			return nil, nil, "", nil, errors.New("HISTORY_BACKEND=firestore requires a Firebase project id")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, "", nil, err
		}
		return history.NewFirestore(client), profile.NewFirestore(client), config.HistoryFirestore, client.Close, nil
	case config.HistorySQLite:
		db, err := sqlitedb.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, "", nil, err
		}
		return history.NewSQLite(db), profile.NewSQLite(db), config.HistorySQLite, db.Close, nil
	default:
		return history.NewMemory(), profile.NewMemory(), config.HistoryMemory, nil, nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("VIBE backend listening", slog.String("addr", addr))
	return runServer(ctx, srv, serverCfg.ShutdownTimeout)
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
