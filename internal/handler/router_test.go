package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middlewarePkg "github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/internal/service/ai"
	convservice "github.com/vibe-companion/backend/internal/service/conversation"
	"github.com/vibe-companion/backend/internal/service/history"
	"github.com/vibe-companion/backend/internal/service/profile"
)

type stubVerifier struct{}

func (stubVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	if token != "valid" {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: "user-1", Claims: map[string]any{"name": "Ravi"}}, nil
}

func newTestRouter(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Conversation == nil {
		deps.Conversation = convservice.New(convservice.Options{})
	}
	if deps.TempDir == "" {
		deps.TempDir = t.TempDir()
	}
	deps.FrontendURL = "http://localhost:3000"
	return NewRouter(deps)
}

func TestNotFound(t *testing.T) {
	r := newTestRouter(t, Deps{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope?x=1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body notFoundBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Route not found", body.Error)
	assert.Equal(t, "The requested path /nope?x=1 does not exist.", body.Message)
	assert.Contains(t, body.AvailableEndpoints, "POST /conversation/text")
}

func TestDemoTextTurnThroughRouter(t *testing.T) {
	r := newTestRouter(t, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/conversation/text", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"You said: \"hello\". I'm currently in demo mode, but I'm here to chat!","ttsAudioUrl":null}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestConversationRateLimit(t *testing.T) {
	r := newTestRouter(t, Deps{
		GeneralLimiter:      middlewarePkg.NewRateLimiter(100, time.Minute),
		ConversationLimiter: middlewarePkg.NewRateLimiter(1, time.Minute),
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/conversation/text", strings.NewReader(`{"message":"hi"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"API rate limit exceeded","message":"Please wait a moment before making more requests."}`, rec.Body.String())

	// Other routes are not charged against the /conversation budget.
	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestSocketTurnsShareConversationLimit(t *testing.T) {
	r := newTestRouter(t, Deps{
		Realtime:            convservice.New(convservice.Options{}),
		ConversationLimiter: middlewarePkg.NewRateLimiter(1, time.Hour),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/conversation/text", "application/json", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat_message","data":{"message":"hi"}}`)))
		var got struct {
			Event string `json:"event"`
			Data  struct {
				Error string `json:"error"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "chat_error", got.Event)
		assert.Equal(t, "API rate limit exceeded", got.Data.Error)
	}
}

type recordingGenerator struct {
	mu  sync.Mutex
	got []ai.Request
}

func (g *recordingGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got = append(g.got, req)
	return "Theek hai!", nil
}

func TestSignedInTurnSeesStoredHistory(t *testing.T) {
	store := history.NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, "user-1", chat.NewMessage(chat.TypeUser, "my name is Ravi", base)))
	require.NoError(t, store.Append(ctx, "user-1", chat.NewMessage(chat.TypeBot, "Nice to meet you, Ravi!", base.Add(time.Second))))

	gen := &recordingGenerator{}
	r := newTestRouter(t, Deps{
		Conversation: convservice.New(convservice.Options{Generator: gen, History: store}),
		History:      store,
		Profiles:     profile.NewMemory(),
		Verifier:     stubVerifier{},
	})

	send := func(token string) {
		req := httptest.NewRequest(http.MethodPost, "/conversation/text", strings.NewReader(`{"message":"what is my name?"}`))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	send("valid")
	send("")

	gen.mu.Lock()
	defer gen.mu.Unlock()
	require.Len(t, gen.got, 2)
	require.Len(t, gen.got[0].History, 2)
	assert.Equal(t, "my name is Ravi", gen.got[0].History[0].Content)
	assert.Empty(t, gen.got[1].History)
}

func TestAccountRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t, Deps{
		History:  history.NewMemory(),
		Profiles: profile.NewMemory(),
		Verifier: stubVerifier{},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[],"hasMore":false}`, rec.Body.String())
}

func TestUploadsServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tts_1.mp3"), []byte("ID3"), 0o644))
	r := newTestRouter(t, Deps{UploadsDir: dir})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/tts_1.mp3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())
}

func TestPreflight(t *testing.T) {
	r := newTestRouter(t, Deps{})
	req := httptest.NewRequest(http.MethodOptions, "/conversation/text", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
