package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPersonas(t *testing.T) {
	r := chi.NewRouter()
	New().RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Personalities, 3)
	assert.Len(t, body.Languages, 3)
	assert.Equal(t, "young_friend", body.Defaults.Personality)
	assert.Equal(t, "english", body.Defaults.Language)
}
