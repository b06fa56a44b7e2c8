// Package conversation exposes the text, voice and streaming chat endpoints.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vibe-companion/backend/internal/apperr"
	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/model/chat"
	convservice "github.com/vibe-companion/backend/internal/service/conversation"
	"github.com/vibe-companion/backend/internal/upload"
	"github.com/vibe-companion/backend/pkg/utils"
)

// Service is the part of the conversation gateway the handler uses.
type Service interface {
	TextTurn(ctx context.Context, req chat.TextRequest) (*chat.TurnResponse, error)
	VoiceTurn(ctx context.Context, in convservice.VoiceInput) (*chat.TurnResponse, error)
	StreamText(ctx context.Context, req chat.TextRequest, onChunk func(string) error) (string, error)
}

// Handler serves /conversation.
type Handler struct {
	svc        Service
	upload     upload.Options
	withDetail bool
}

// New creates the handler. Uploads are staged under tempDir; withDetail adds
// the raw error to error bodies outside production.
func New(svc Service, tempDir string, withDetail bool) *Handler {
	return &Handler{svc: svc, upload: upload.AudioOptions(tempDir), withDetail: withDetail}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/text", h.handleText)
	r.Post("/voice", h.handleVoice)
	r.Get("/history", h.handleHistoryStub)
	r.Get("/stream", h.handleStream)
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	var req chat.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondAppError(w, convservice.ErrInvalidMessage, "", false)
		return
	}
	req.UID = uid(r)

	resp, err := h.svc.TextTurn(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err, "Text processing failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	staged, err := upload.Stage(w, r, h.upload)
	if err != nil {
		h.respondError(w, r, err, "Voice processing failed")
		return
	}
	// VoiceTurn releases the file; this covers a panic before it runs.
	defer staged.Release()

	resp, err := h.svc.VoiceTurn(r.Context(), convservice.VoiceInput{
		Audio:       staged,
		ContentType: staged.ContentType,
		Personality: r.FormValue("personality"),
		Language:    r.FormValue("language"),
		UID:         uid(r),
	})
	if err != nil {
		h.respondError(w, r, err, "Voice processing failed")
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleHistoryStub keeps the legacy endpoint; per-user history lives under
// /api/history.
func (h *Handler) handleHistoryStub(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]chat.Message{"history": {}})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := chat.TextRequest{
		Message:     q.Get("message"),
		Personality: q.Get("personality"),
		Language:    q.Get("language"),
		UID:         uid(r),
	}
	if err := convservice.ValidateText(req.Message); err != nil {
		h.respondError(w, r, err, "Text processing failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "Streaming unsupported", "This server cannot stream responses.")
		return
	}
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := logging.FromContext(r.Context())
	reply, err := h.svc.StreamText(r.Context(), req, func(delta string) error {
		return utils.SendSSEChunk(w, flusher, map[string]string{"delta": delta})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("stream closed by client")
			return
		}
		logger.Error("stream failed", slog.Any(logging.ErrorField, err))
		appErr := apperr.Wrap(err, "AI response generation failed")
		_ = utils.SendSSEEvent(w, flusher, "error", utils.ErrorBody{Error: appErr.Title, Message: appErr.Message})
		return
	}
	_ = utils.SendSSEEvent(w, flusher, "done", map[string]string{"response": reply})
}

// uid is the signed-in user set by middleware.OptionalAuth, or empty.
func uid(r *http.Request) string {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.UID
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, title string) {
	kind := apperr.Classify(err)
	if kind != apperr.InvalidInput {
		logging.FromContext(r.Context()).Error(title,
			slog.String("kind", kind.String()), slog.Any(logging.ErrorField, err))
	}
	utils.RespondAppError(w, err, title, h.withDetail)
}
