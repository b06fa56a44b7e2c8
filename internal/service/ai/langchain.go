package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/model/chat"
)

// LangchainGenerator drives any langchaingo model (Gemini, OpenAI).
type LangchainGenerator struct {
	name      string
	llm       llms.Model
	maxTokens int
}

// NewGemini builds a generator on the Google Generative AI API.
func NewGemini(ctx context.Context, apiKey, modelName string, maxTokens int) (*LangchainGenerator, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewLangchainGenerator("gemini", llm, maxTokens), nil
}

// NewOpenAI builds a generator on the OpenAI chat API.
func NewOpenAI(apiKey, modelName string, maxTokens int) (*LangchainGenerator, error) {
	llm, err := openai.New(
		openai.WithModel(modelName),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewLangchainGenerator("openai", llm, maxTokens), nil
}

// NewLangchainGenerator wraps an existing model.
func NewLangchainGenerator(name string, llm llms.Model, maxTokens int) *LangchainGenerator {
	return &LangchainGenerator{name: name, llm: llm, maxTokens: maxTokens}
}

// Generate implements Generator.
func (g *LangchainGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.llm.GenerateContent(ctx, langchainMessages(req), g.options()...)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s generate: empty response", g.name)
	}

	reply := strings.TrimSpace(resp.Choices[0].Content)
	logging.FromContext(ctx).Debug("ai reply generated",
		slog.String("generator", g.name), slog.Int("length", len(reply)))
	return reply, nil
}

// Stream implements Streamer.
func (g *LangchainGenerator) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	opts := append(g.options(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onChunk(string(chunk))
	}))

	resp, err := g.llm.GenerateContent(ctx, langchainMessages(req), opts...)
	if err != nil {
		return "", fmt.Errorf("%s stream: %w", g.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (g *LangchainGenerator) options() []llms.CallOption {
	if g.maxTokens <= 0 {
		return nil
	}
	return []llms.CallOption{llms.WithMaxTokens(g.maxTokens)}
}

// langchainMessages renders the turn as prior history followed by a single
// human message holding the system prompt, the user line and the reply cue.
func langchainMessages(req Request) []llms.MessageContent {
	recent := recentHistory(req.History)
	messages := make([]llms.MessageContent, 0, len(recent)+1)
	for _, msg := range recent {
		if msg.IsError {
			continue
		}
		switch msg.Type {
		case chat.TypeUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case chat.TypeBot:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		}
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
		req.SystemPrompt(),
		userTurn(req.Message),
		replyCue,
	))
}
