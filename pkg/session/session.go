// Package session holds the chat screen's state: the transcript, the
// recording lifecycle, pending retries and history paging.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/pkg/client"
	"github.com/vibe-companion/backend/pkg/retry"
)

// State is the recording/sending lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateRecorded  State = "recorded"
	StateSending   State = "sending"
)

// HistoryState tracks history loading, independent of State.
type HistoryState string

const (
	HistoryIdle    HistoryState = "idle"
	HistoryLoading HistoryState = "loading"
	HistoryLoaded  HistoryState = "loaded"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrNothingToRetry is returned by Retry without a failed send.
	ErrNothingToRetry = errors.New("session: nothing to retry")
	// ErrEmptyMessage is returned for blank text.
	ErrEmptyMessage = errors.New("session: empty message")
)

// Gateway sends turns to the backend. *client.Client satisfies it.
type Gateway interface {
	SendText(ctx context.Context, req chat.TextRequest) (*chat.TurnResponse, error)
	SendVoice(ctx context.Context, req client.VoiceRequest) (*chat.TurnResponse, error)
}

// History loads and saves transcript messages.
type History interface {
	HistoryPage(ctx context.Context, cursor string, limit int) (chat.Page, error)
	SaveMessage(ctx context.Context, msg chat.Message) error
	ClearHistory(ctx context.Context) (int, error)
}

// Recording is captured audio.
type Recording struct {
	Audio       []byte
	ContentType string
	Duration    time.Duration
}

// Capture owns the microphone between Start and Stop.
type Capture interface {
	Start(ctx context.Context) error
	// Stop releases the microphone and returns what was captured.
	Stop() (Recording, error)
}

// Connectivity reports whether the network is reachable.
type Connectivity interface {
	Online() bool
}

// Player plays local recordings and reply audio.
type Player interface {
	PlayRecording(ctx context.Context, rec Recording) error
	PlayURL(ctx context.Context, url string) error
}

// EventKind identifies an Event.
type EventKind string

const (
	EventStateChanged   EventKind = "state_changed"
	EventHistoryChanged EventKind = "history_changed"
	EventMessage        EventKind = "message"
	EventError          EventKind = "error"
)

// Event is delivered to the EventSink after the state it describes is visible.
type Event struct {
	Kind    EventKind
	State   State
	History HistoryState
	Message *chat.Message
	Err     error
	Info    client.Info
}

// EventSink receives session events. Emit must not call back into the Session.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(e Event) { f(e) }

// Options wires a Session.
type Options struct {
	Gateway      Gateway
	History      History
	Capture      Capture
	Connectivity Connectivity
	Player       Player
	Events       EventSink
	Logger       *slog.Logger
	Personality  string
	Language     string
	Retry        retry.Policy
	Now          func() time.Time
	PageSize     int
}

type pendingSend struct {
	text  *chat.TextRequest
	voice *Recording
}

// Session is safe for concurrent use; actions that conflict with an
// in-flight one fail with ErrInvalidTransition.
type Session struct {
	opts Options

	mu           sync.Mutex
	state        State
	historyState HistoryState
	messages     []chat.Message
	recording    *Recording
	pending      *pendingSend
	cursor       string
	hasMore      bool
}

// New creates an idle session showing the welcome message.
func New(opts Options) *Session {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = chat.HistoryPageSize
	}
	if opts.Personality == "" {
		opts.Personality = chat.DefaultPersonality
	}
	if opts.Language == "" {
		opts.Language = chat.DefaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = EventSinkFunc(func(Event) {})
	}
	return &Session{
		opts:         opts,
		state:        StateIdle,
		historyState: HistoryIdle,
		messages:     []chat.Message{chat.Welcome(opts.Now())},
		hasMore:      true,
	}
}

// State returns the recording/sending state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HistoryState returns the history loading state.
func (s *Session) HistoryState() HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyState
}

// Messages returns a copy of the transcript in display order.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HasMore reports whether older history may exist.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// CanRetry reports whether a failed send is waiting for Retry.
func (s *Session) CanRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// transition moves from one of the allowed states to next. Callers must not
// hold mu.
func (s *Session) transition(next State, from ...State) error {
	s.mu.Lock()
	current := s.state
	allowed := false
	for _, f := range from {
		if current == f {
			allowed = true
			break
		}
	}
	if !allowed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	s.state = next
	s.mu.Unlock()

	s.opts.Events.Emit(Event{Kind: EventStateChanged, State: next})
	return nil
}

func (s *Session) fail(err error) error {
	s.opts.Events.Emit(Event{Kind: EventError, Err: err, Info: client.Describe(err)})
	return err
}

func (s *Session) online() bool {
	return s.opts.Connectivity == nil || s.opts.Connectivity.Online()
}
