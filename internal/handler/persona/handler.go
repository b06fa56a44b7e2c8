package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vibe-companion/backend/internal/model/persona"
	"github.com/vibe-companion/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct{}

// New 创建persona处理器
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

type listResponse struct {
	Personalities []persona.Personality `json:"personalities"`
	Languages     []persona.Language    `json:"languages"`
	Defaults      defaults              `json:"defaults"`
}

type defaults struct {
	Personality string `json:"personality"`
	Language    string `json:"language"`
}

// handleListPersonas 列出可选的性格与语言
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personalities := persona.Personalities()
	languages := persona.Languages()
	utils.RespondJSON(w, http.StatusOK, listResponse{
		Personalities: personalities,
		Languages:     languages,
		Defaults:      defaults{Personality: personalities[0].ID, Language: languages[0].ID},
	})
}
