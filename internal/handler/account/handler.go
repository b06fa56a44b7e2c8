// Package account serves the signed-in user's history and profile.
package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/model/chat"
	model "github.com/vibe-companion/backend/internal/model/profile"
	"github.com/vibe-companion/backend/internal/service/history"
	"github.com/vibe-companion/backend/internal/service/profile"
	"github.com/vibe-companion/backend/pkg/utils"
)

// Handler serves /api/history and /api/profile. Routes must sit behind
// middleware.Auth.
type Handler struct {
	history  history.Store
	profiles profile.Repository
	now      func() time.Time
}

// New creates the handler.
func New(store history.Store, profiles profile.Repository) *Handler {
	return &Handler{history: store, profiles: profiles, now: time.Now}
}

// RegisterRoutes mounts the history and profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleListHistory)
	r.Post("/history", h.handleAppendHistory)
	r.Delete("/history", h.handleClearHistory)
	r.Get("/profile", h.handleGetProfile)
	r.Put("/profile/settings", h.handleUpdateSettings)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized", "Please sign in again.")
	}
	return id, ok
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	limit := chat.HistoryPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive number.")
			return
		}
		limit = n
	}

	page, err := h.history.Page(r.Context(), id.UID, r.URL.Query().Get("cursor"), limit)
	if errors.Is(err, history.ErrNotFound) {
		utils.RespondError(w, http.StatusBadRequest, "Invalid cursor", "The history cursor is unknown.")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("load history failed", slog.Any(logging.ErrorField, err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to retrieve chat history", "Unable to load your conversation. Please try again.")
		return
	}
	if page.Messages == nil {
		page.Messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, page)
}

func (h *Handler) handleAppendHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var msg chat.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid message", "Please provide a valid message.")
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = chat.FormatTimestamp(h.now())
	} else if ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
		msg.Timestamp = chat.FormatTimestamp(ts)
	} else {
		utils.RespondError(w, http.StatusBadRequest, "Invalid message", "timestamp must be an ISO-8601 date.")
		return
	}
	if err := history.Validate(id.UID, msg); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid message", err.Error())
		return
	}

	err := h.history.Append(r.Context(), id.UID, msg)
	if errors.Is(err, history.ErrExists) {
		utils.RespondError(w, http.StatusConflict, "Message already exists", "Saved messages cannot be changed.")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("save message failed", slog.Any(logging.ErrorField, err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to save message", "Unable to save your conversation. Please try again.")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

type clearResponse struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	n, err := h.history.Clear(r.Context(), id.UID)
	if err != nil {
		logging.FromContext(r.Context()).Error("clear history failed",
			slog.Int("deleted", n), slog.Any(logging.ErrorField, err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to clear chat history", "Unable to clear your conversation. Please try again.")
		return
	}
	logging.FromContext(r.Context()).Info("chat history cleared", slog.Int("deleted", n))
	utils.RespondJSON(w, http.StatusOK, clearResponse{Deleted: n, Message: "Chat history cleared successfully"})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	p, err := h.profiles.GetOrCreate(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("load profile failed", slog.Any(logging.ErrorField, err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to load profile", "Unable to load your profile. Please try again.")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid settings", "Please provide valid settings.")
		return
	}

	p, err := h.profiles.UpdateSettings(r.Context(), id, settings)
	if errors.Is(err, profile.ErrInvalidSettings) {
		utils.RespondError(w, http.StatusBadRequest, "Invalid settings", err.Error())
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("update settings failed", slog.Any(logging.ErrorField, err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update settings", "Unable to save your settings. Please try again.")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
