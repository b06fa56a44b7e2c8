// Package client talks to the VIBE gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibe-companion/backend/internal/model/chat"
)

// TokenSource returns the bearer token for authenticated calls. An empty
// token sends no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// Client is a thin, single-attempt HTTP client. Callers add retries.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource enables the authenticated history endpoints.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VoiceRequest is one recorded turn.
type VoiceRequest struct {
	Audio       []byte
	Filename    string
	ContentType string
	Personality string
	Language    string
}

// SendText posts a text turn.
func (c *Client) SendText(ctx context.Context, req chat.TextRequest) (*chat.TurnResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode text request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversation/text", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp chat.TurnResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendVoice posts a recorded turn as multipart/form-data.
func (c *Client) SendVoice(ctx context.Context, req VoiceRequest) (*chat.TurnResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = "recording.webm"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "audio/webm"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, err
	}
	for _, field := range [][2]string{{"personality", req.Personality}, {"language", req.Language}} {
		if field[1] == "" {
			continue
		}
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conversation/voice", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp chat.TurnResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryPage fetches one page of the signed-in user's history.
func (c *Client) HistoryPage(ctx context.Context, cursor string, limit int) (chat.Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/api/history"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return chat.Page{}, err
	}

	var page chat.Page
	if err := c.do(httpReq, &page); err != nil {
		return chat.Page{}, err
	}
	return page, nil
}

// SaveMessage appends msg to the signed-in user's history.
func (c *Client) SaveMessage(ctx context.Context, msg chat.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/history", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, nil)
}

// ClearHistory deletes the signed-in user's whole history and returns how
// many messages were removed.
func (c *Client) ClearHistory(ctx context.Context) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/history", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(httpReq, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != nil {
		token, err := c.token(req.Context())
		if err != nil {
			return fmt.Errorf("get auth token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Title   string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Title = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}

// ErrOffline is returned when a send or recording is attempted without
// network connectivity.
var ErrOffline = errors.New("no internet connection")
