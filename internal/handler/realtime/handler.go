// Package realtime serves the /ws chat socket.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/middleware"
	"github.com/vibe-companion/backend/internal/model/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	eventChatMessage  = "chat_message"
	eventChatResponse = "chat_response"
	eventChatError    = "chat_error"
)

// TextTurner produces a reply for one text message.
type TextTurner interface {
	TextTurn(ctx context.Context, req chat.TextRequest) (*chat.TurnResponse, error)
}

// Limiter decides whether a client may run another chat turn.
// *middleware.RateLimiter satisfies it.
type Limiter interface {
	Allow(key string) bool
}

// Handler serves the chat socket.
type Handler struct {
	turner   TextTurner
	limiter  Limiter
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New creates the handler. A nil turner answers every message with the
// welcome text. Every chat_message is charged against limiter, keyed by
// client IP; nil disables the check.
func New(turner TextTurner, limiter Limiter, allowedOrigin string) *Handler {
	return &Handler{
		turner:  turner,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || origin == allowedOrigin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// RegisterRoutes mounts /ws.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type chatMessageData struct {
	Message     string `json:"message"`
	Personality string `json:"personality,omitempty"`
	Language    string `json:"language,omitempty"`
}

type outgoing struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type chatError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// client is one connection. Writes are serialized by mu.
type client struct {
	id     string
	ip     string
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func (c *client) send(msg outgoing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", slog.Any(logging.ErrorField, err))
		return
	}
	defer conn.Close()

	c := &client{id: uuid.NewString(), ip: middleware.ClientIP(r), conn: conn}
	c.logger = logging.FromContext(r.Context()).With(slog.String("client_id", c.id))
	c.logger.Info("websocket client connected")
	defer c.logger.Info("websocket client disconnected")

	// The request context stays valid after Upgrade until the handler returns.
	ctx, cancel := context.WithCancel(logging.WithLogger(r.Context(), c.logger))
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, c)

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", slog.Any(logging.ErrorField, err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Event != eventChatMessage {
			c.logger.Debug("ignoring websocket event", slog.String("event", msg.Event))
			continue
		}
		reply := rateLimited()
		if h.limiter == nil || h.limiter.Allow(c.ip) {
			reply = h.reply(ctx, msg.Data)
		} else {
			c.logger.Warn("rate limit exceeded", slog.String("ip", c.ip))
		}
		if err := c.send(reply); err != nil {
			c.logger.Warn("websocket write failed", slog.Any(logging.ErrorField, err))
			return
		}
	}
}

func (h *Handler) reply(ctx context.Context, raw json.RawMessage) outgoing {
	var data chatMessageData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return failure()
		}
	}

	if h.turner == nil {
		return outgoing{Event: eventChatResponse, Data: chat.NewMessage(chat.TypeBot, chat.WelcomeText, h.now())}
	}

	resp, err := h.turner.TextTurn(ctx, chat.TextRequest{
		Message:     data.Message,
		Personality: data.Personality,
		Language:    data.Language,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("websocket chat turn failed", slog.Any(logging.ErrorField, err))
		return failure()
	}

	msg := chat.NewMessage(chat.TypeBot, resp.Response, h.now())
	msg.TTSAudioURL = resp.TTSAudioURL
	return outgoing{Event: eventChatResponse, Data: msg}
}

func rateLimited() outgoing {
	return outgoing{Event: eventChatError, Data: chatError{Error: "API rate limit exceeded", Message: "Please wait a moment before making more requests."}}
}

func failure() outgoing {
	return outgoing{Event: eventChatError, Data: chatError{Error: "Failed to process message", Message: "Please try again."}}
}

// pingLoop keeps the connection alive until ctx is done.
func pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
