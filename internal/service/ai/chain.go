package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/model/chat"
)

// ChainGenerator runs the prompt template and chat model as a compiled eino chain.
type ChainGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewChainGenerator compiles the chain around chatModel.
func NewChainGenerator(ctx context.Context, chatModel model.BaseChatModel) (*ChainGenerator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ChainGenerator{chain: runnable}, nil
}

// Generate implements Generator.
func (g *ChainGenerator) Generate(ctx context.Context, req Request) (string, error) {
	response, err := g.chain.Invoke(ctx, chainInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	logging.FromContext(ctx).Debug("ai reply generated",
		slog.String("generator", "eino"), slog.Int("length", len(reply)))
	return reply, nil
}

// Stream implements Streamer.
func (g *ChainGenerator) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	stream, err := g.chain.Stream(ctx, chainInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive AI chunk: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if err := onChunk(chunk.Content); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(full.String()), nil
}

func chainInput(req Request) map[string]any {
	return map[string]any{
		"system":  req.SystemPrompt(),
		"history": historyMessages(req.History),
		"query":   userTurn(req.Message) + "\n" + replyCue,
	}
}

func historyMessages(messages []chat.Message) []*schema.Message {
	recent := recentHistory(messages)
	if len(recent) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(recent))
	for _, msg := range recent {
		if msg.IsError {
			continue
		}
		switch msg.Type {
		case chat.TypeUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.TypeBot:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
