package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/internal/model/persona"
)

type fakeChatModel struct {
	input  []*schema.Message
	reply  string
	chunks []string
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.input = input
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestChainGeneratorBuildsPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "  Arre, hello!  "}
	g, err := NewChainGenerator(context.Background(), fake)
	require.NoError(t, err)

	history := []chat.Message{
		{Type: chat.TypeUser, Content: "hi"},
		{Type: chat.TypeBot, Content: "oops", IsError: true},
		{Type: chat.TypeBot, Content: "hello there"},
	}
	reply, err := g.Generate(context.Background(), Request{Message: " how are you ", History: history})
	require.NoError(t, err)
	assert.Equal(t, "Arre, hello!", reply)

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Equal(t, persona.SystemPrompt, fake.input[0].Content)
	assert.Equal(t, schema.User, fake.input[1].Role)
	assert.Equal(t, schema.Assistant, fake.input[2].Role)
	assert.Equal(t, "User: how are you\nVIBE:", fake.input[3].Content)
}

func TestChainGeneratorStream(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Namaste", ", ", "dost!"}}
	g, err := NewChainGenerator(context.Background(), fake)
	require.NoError(t, err)

	var got []string
	full, err := g.Stream(context.Background(), Request{Message: "hi"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Namaste", ", ", "dost!"}, got)
	assert.Equal(t, "Namaste, dost!", full)
}

type fakeLLM struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	reply    string
	err      error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(f.reply, " ") {
			if err := f.opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangchainGeneratorPromptParts(t *testing.T) {
	fake := &fakeLLM{reply: "Theek hai!\n"}
	g := NewLangchainGenerator("fake", fake, 256)

	reply, err := g.Generate(context.Background(), Request{Message: "kaise ho", Personality: "mentor"})
	require.NoError(t, err)
	assert.Equal(t, "Theek hai!", reply)
	assert.Equal(t, 256, fake.opts.MaxTokens)

	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, llms.ChatMessageTypeHuman, msg.Role)
	require.Len(t, msg.Parts, 3)
	assert.Contains(t, msg.Parts[0].(llms.TextContent).Text, persona.SystemPrompt)
	assert.Equal(t, llms.TextContent{Text: "User: kaise ho"}, msg.Parts[1])
	assert.Equal(t, llms.TextContent{Text: "VIBE:"}, msg.Parts[2])
}

func TestLangchainGeneratorStream(t *testing.T) {
	fake := &fakeLLM{reply: "one two three"}
	g := NewLangchainGenerator("fake", fake, 0)

	var b strings.Builder
	full, err := g.Stream(context.Background(), Request{Message: "count"}, func(s string) error {
		b.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", b.String())
	assert.Equal(t, "one two three", full)
}

func TestLangchainGeneratorWrapsError(t *testing.T) {
	upstream := errors.New("quota exhausted")
	g := NewLangchainGenerator("fake", &fakeLLM{err: upstream}, 0)

	_, err := g.Generate(context.Background(), Request{Message: "x"})
	assert.ErrorIs(t, err, upstream)
}

func TestDemoReplies(t *testing.T) {
	var d Demo
	text, err := d.Generate(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, `You said: "hello". I'm currently in demo mode, but I'm here to chat!`, text)

	voice, err := d.Generate(context.Background(), Request{Message: "hello", Voice: true})
	require.NoError(t, err)
	assert.Equal(t, `I heard you say: "hello". I'm currently in demo mode, but I'm here to chat!`, voice)

	assert.True(t, IsDemo(d))
	assert.False(t, IsDemo(&ChainGenerator{}))
}

func TestRecentHistoryLimit(t *testing.T) {
	msgs := make([]chat.Message, 15)
	for i := range msgs {
		msgs[i] = chat.Message{Type: chat.TypeUser, Content: string(rune('a' + i))}
	}
	recent := recentHistory(msgs)
	require.Len(t, recent, HistoryLimit)
	assert.Equal(t, "f", recent[0].Content)
}
