package handler

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vibe-companion/backend/internal/handler/account"
	"github.com/vibe-companion/backend/internal/handler/conversation"
	"github.com/vibe-companion/backend/internal/handler/health"
	"github.com/vibe-companion/backend/internal/handler/persona"
	"github.com/vibe-companion/backend/internal/handler/realtime"
	middlewarePkg "github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/service/history"
	"github.com/vibe-companion/backend/internal/service/profile"
	"github.com/vibe-companion/backend/pkg/utils"
)

var availableEndpoints = []string{
	"GET /",
	"GET /api/health",
	"POST /conversation/text",
	"POST /conversation/voice",
	"GET /conversation/history",
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Logger *slog.Logger
	// AccessLog, when set, receives one chi access-log line per request.
	AccessLog    *log.Logger
	Conversation conversation.Service
	// Realtime answers /ws messages; nil replies with the welcome text.
	Realtime realtime.TextTurner
	History  history.Store
	Profiles profile.Repository
	Verifier middlewarePkg.TokenVerifier
	Health   health.Info

	FrontendURL string
	UploadsDir  string
	TempDir     string
	// ErrorDetail adds raw error text to error bodies outside production.
	ErrorDetail bool

	GeneralLimiter      *middlewarePkg.RateLimiter
	ConversationLimiter *middlewarePkg.RateLimiter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	if deps.AccessLog != nil {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: deps.AccessLog, NoColor: true}))
	}
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.SecurityHeaders)
	r.Use(middleware.Compress(5))
	r.Use(middlewarePkg.CORS(deps.FrontendURL))
	if deps.GeneralLimiter != nil {
		r.Use(deps.GeneralLimiter.Middleware("Too many requests", "Please wait a moment before trying again."))
	}

	healthHandler := health.New(deps.Health)
	r.Get("/", healthHandler.Banner)

	r.Route("/api", func(api chi.Router) {
		healthHandler.RegisterRoutes(api)
		persona.New().RegisterRoutes(api)

		if deps.History != nil && deps.Profiles != nil {
			api.Group(func(secured chi.Router) {
				secured.Use(middlewarePkg.Auth(deps.Verifier))
				account.New(deps.History, deps.Profiles).RegisterRoutes(secured)
			})
		}
	})

	if deps.Conversation != nil {
		r.Route("/conversation", func(conv chi.Router) {
			if deps.ConversationLimiter != nil {
				conv.Use(deps.ConversationLimiter.Middleware("API rate limit exceeded", "Please wait a moment before making more requests."))
			}
			conv.Use(middlewarePkg.OptionalAuth(deps.Verifier))
			conversation.New(deps.Conversation, deps.TempDir, deps.ErrorDetail).RegisterRoutes(conv)
		})
	}

	// Socket turns share the /conversation budget.
	var wsLimiter realtime.Limiter
	if deps.ConversationLimiter != nil {
		wsLimiter = deps.ConversationLimiter
	}
	realtime.New(deps.Realtime, wsLimiter, deps.FrontendURL).RegisterRoutes(r)

	if deps.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadsDir))))
	}

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed",
			fmt.Sprintf("%s is not supported for %s.", r.Method, r.URL.Path))
	})

	return r
}

type notFoundBody struct {
	Error              string   `json:"error"`
	Message            string   `json:"message"`
	AvailableEndpoints []string `json:"availableEndpoints"`
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusNotFound, notFoundBody{
		Error:              "Route not found",
		Message:            fmt.Sprintf("The requested path %s does not exist.", r.URL.RequestURI()),
		AvailableEndpoints: availableEndpoints,
	})
}
