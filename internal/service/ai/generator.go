// Package ai produces VIBE's replies from a language model.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/internal/model/persona"
)

// HistoryLimit bounds how many prior messages are sent as context.
const HistoryLimit = 10

// Request is one reply to generate.
type Request struct {
	Message     string
	Personality string
	Language    string
	// History is the prior transcript in display order.
	History []chat.Message
	// Voice marks a transcribed voice turn.
	Voice bool
}

// SystemPrompt returns the fixed VIBE prompt plus the request's style hints.
func (r Request) SystemPrompt() string {
	return persona.BuildSystemPrompt(r.Personality, r.Language)
}

// Generator produces a single reply.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Streamer is implemented by generators that can emit partial output. onChunk
// receives each delta; the full trimmed reply is returned at the end.
type Streamer interface {
	Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error)
}

// Demo answers without a language model by echoing the input.
type Demo struct{}

// Generate implements Generator.
func (Demo) Generate(_ context.Context, req Request) (string, error) {
	if req.Voice {
		return fmt.Sprintf("I heard you say: \"%s\". I'm currently in demo mode, but I'm here to chat!", req.Message), nil
	}
	return fmt.Sprintf("You said: \"%s\". I'm currently in demo mode, but I'm here to chat!", req.Message), nil
}

// Stream implements Streamer with a single chunk.
func (d Demo) Stream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	reply, _ := d.Generate(ctx, req)
	if err := onChunk(reply); err != nil {
		return "", err
	}
	return reply, nil
}

// IsDemo reports whether g is the demo generator.
func IsDemo(g Generator) bool {
	switch g.(type) {
	case Demo, *Demo:
		return true
	}
	return false
}

func recentHistory(messages []chat.Message) []chat.Message {
	if len(messages) > HistoryLimit {
		return messages[len(messages)-HistoryLimit:]
	}
	return messages
}

func userTurn(message string) string {
	return "User: " + strings.TrimSpace(message)
}

const replyCue = persona.AssistantName + ":"
