package chat

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies who sent a message.
type Type string

const (
	TypeUser Type = "user"
	TypeBot  Type = "bot"
)

// TimestampLayout matches JavaScript's Date.toISOString so stored timestamps
// sort lexically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Fixed texts shown in the transcript.
const (
	WelcomeText        = "Hello! I am VIBE, your AI companion. How can I help you today?"
	ClarificationText  = "I couldn't hear what you said. Could you please try again?"
	VoicePlaceholder   = "[Voice message]"
	EmptyTextReply     = "VIBE could not process your message."
	EmptyVoiceReply    = "VIBE could not process your voice message."
	TextFailureReply   = "Sorry, I'm having trouble responding right now. Please try again."
	VoiceFailureReply  = "Sorry, I couldn't process your voice message. Please try again."
	MaxMessageLength   = 1000
	HistoryPageSize    = 20
	DefaultPersonality = "young_friend"
	DefaultLanguage    = "english"
)

// Message is one transcript entry. Messages are immutable once created.
type Message struct {
	ID          string  `json:"id" firestore:"id"`
	Type        Type    `json:"type" firestore:"type"`
	Content     string  `json:"content" firestore:"content"`
	Timestamp   string  `json:"timestamp" firestore:"timestamp"`
	TTSAudioURL *string `json:"ttsAudioUrl,omitempty" firestore:"ttsAudioUrl,omitempty"`
	IsError     bool    `json:"isError,omitempty" firestore:"isError,omitempty"`
}

// NewMessage creates a message stamped with now.
func NewMessage(t Type, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      t,
		Content:   content,
		Timestamp: FormatTimestamp(now),
	}
}

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Welcome is the greeting shown when a user has no history.
func Welcome(now time.Time) Message {
	return Message{ID: "welcome", Type: TypeBot, Content: WelcomeText, Timestamp: FormatTimestamp(now)}
}

// TextRequest is the JSON body of POST /conversation/text.
type TextRequest struct {
	Message     string `json:"message"`
	Personality string `json:"personality,omitempty"`
	Language    string `json:"language,omitempty"`
	// UID is the signed-in user, set server side from the bearer token.
	UID string `json:"-"`
}

// TurnResponse is returned by both conversation endpoints. TTSAudioURL is null
// when audio could not be produced.
type TurnResponse struct {
	Transcription *string `json:"transcription,omitempty"`
	Response      string  `json:"response"`
	TTSAudioURL   *string `json:"ttsAudioUrl"`
}

// Page is one slice of history in display order (oldest first).
type Page struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor,omitempty"`
	HasMore  bool      `json:"hasMore"`
}
