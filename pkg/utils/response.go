package utils

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vibe-companion/backend/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// RespondJSON writes data as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// RespondError writes an ErrorBody.
func RespondError(w http.ResponseWriter, status int, title, message string) {
	RespondJSON(w, status, ErrorBody{Error: title, Message: message})
}

// RespondAppError renders err through the apperr taxonomy. Unclassified errors
// get fallbackTitle. The raw cause is included only when withDetail is set.
func RespondAppError(w http.ResponseWriter, err error, fallbackTitle string, withDetail bool) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(err, fallbackTitle)
	}
	body := ErrorBody{Error: appErr.Title, Message: appErr.Message}
	if withDetail && appErr.Err != nil {
		body.Detail = appErr.Err.Error()
	}
	RespondJSON(w, appErr.Kind.Status(), body)
}
