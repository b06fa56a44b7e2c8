// Package health serves the banner and health check endpoints.
package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/pkg/utils"
)

const (
	serviceName = "VIBE AI Companion API"
	version     = "1.0.0"
)

// Services reports which external integrations are configured.
type Services struct {
	GoogleCloud  bool `json:"googleCloud"`
	Gemini       bool `json:"gemini"`
	Firebase     bool `json:"firebase"`
	CloudStorage bool `json:"cloudStorage"`
}

// Providers names the active backend per concern.
type Providers struct {
	AI      string `json:"ai"`
	Speech  string `json:"speech"`
	Storage string `json:"storage"`
	History string `json:"history"`
}

// Info is the static part of the health report, fixed at startup.
type Info struct {
	Environment string
	StartedAt   time.Time
	Services    Services
	Providers   Providers
}

// Handler serves health checks.
type Handler struct {
	info Info
	now  func() time.Time
}

// New creates the handler.
func New(info Info) *Handler {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &Handler{info: info, now: time.Now}
}

// RegisterRoutes mounts GET /health on the /api router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

// Banner serves GET /.
func (h *Handler) Banner(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message":   serviceName + " is running!",
		"version":   version,
		"timestamp": chat.FormatTimestamp(h.now()),
	})
}

type memoryUsage struct {
	RSS       uint64 `json:"rss"`
	HeapTotal uint64 `json:"heapTotal"`
	HeapUsed  uint64 `json:"heapUsed"`
	NumGC     uint32 `json:"numGC"`
}

type report struct {
	Status      string      `json:"status"`
	Timestamp   string      `json:"timestamp"`
	Service     string      `json:"service"`
	Uptime      float64     `json:"uptime"`
	Environment string      `json:"environment"`
	Memory      memoryUsage `json:"memory"`
	Goroutines  int         `json:"goroutines"`
	Services    Services    `json:"services"`
	Providers   Providers   `json:"providers"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := h.now()
	utils.RespondJSON(w, http.StatusOK, report{
		Status:      "OK",
		Timestamp:   chat.FormatTimestamp(now),
		Service:     serviceName,
		Uptime:      now.Sub(h.info.StartedAt).Seconds(),
		Environment: h.info.Environment,
		Memory: memoryUsage{
			RSS:       ms.Sys,
			HeapTotal: ms.HeapSys,
			HeapUsed:  ms.HeapAlloc,
			NumGC:     ms.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
		Services:   h.info.Services,
		Providers:  h.info.Providers,
	})
}
