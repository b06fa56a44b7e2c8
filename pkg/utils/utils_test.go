package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-companion/backend/internal/apperr"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "Invalid message", "Please provide a valid message.")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, ErrorBody{Error: "Invalid message", Message: "Please provide a valid message."}, decodeError(t, rec))
}

func TestRespondAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondAppError(rec, errors.New("daily quota reached"), "Text processing failed", false)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Text processing failed", body.Error)
	assert.Equal(t, "Service quota exceeded. Please try again later.", body.Message)
	assert.Empty(t, body.Detail)

	rec = httptest.NewRecorder()
	RespondAppError(rec, apperr.Wrap(errors.New("boom"), "AI response generation failed"), "ignored", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decodeError(t, rec)
	assert.Equal(t, "AI response generation failed", body.Error)
	assert.Equal(t, "boom", body.Detail)
}

func TestSendSSEChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	require.NoError(t, SendSSEChunk(rec, rec, map[string]string{"delta": "hi"}))
	require.NoError(t, SendSSEEvent(rec, rec, "done", map[string]bool{"ok": true}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"delta\":\"hi\"}\n\nevent: done\ndata: {\"ok\":true}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}
