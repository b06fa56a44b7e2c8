package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/pkg/client"
	"github.com/vibe-companion/backend/pkg/retry"
)

// SendText appends the user message and sends it. On final failure an error
// message is appended and the send is kept for Retry.
func (s *Session) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if !s.online() {
		return s.fail(fmt.Errorf("send message: %w", client.ErrOffline))
	}
	if err := s.transition(StateSending, StateIdle); err != nil {
		return err
	}
	defer s.setState(StateIdle)

	s.appendMessage(ctx, chat.NewMessage(chat.TypeUser, text, s.opts.Now()))
	req := chat.TextRequest{Message: text, Personality: s.opts.Personality, Language: s.opts.Language}
	return s.deliverText(ctx, req)
}

// SendRecording sends the held recording.
func (s *Session) SendRecording(ctx context.Context) error {
	if !s.online() {
		return s.fail(fmt.Errorf("send voice message: %w", client.ErrOffline))
	}
	if err := s.transition(StateSending, StateRecorded); err != nil {
		return err
	}
	defer s.setState(StateIdle)

	s.mu.Lock()
	rec := s.recording
	s.recording = nil
	s.mu.Unlock()
	if rec == nil {
		return fmt.Errorf("%w: no recording held", ErrInvalidTransition)
	}
	return s.deliverVoice(ctx, *rec)
}

// Retry re-sends exactly the last failed text or voice turn. The user
// message of a failed text send is not appended twice.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return ErrNothingToRetry
	}
	if !s.online() {
		return s.fail(fmt.Errorf("retry: %w", client.ErrOffline))
	}
	if err := s.transition(StateSending, StateIdle); err != nil {
		return err
	}
	defer s.setState(StateIdle)

	if pending.voice != nil {
		return s.deliverVoice(ctx, *pending.voice)
	}
	return s.deliverText(ctx, *pending.text)
}

func (s *Session) deliverText(ctx context.Context, req chat.TextRequest) error {
	resp, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) (*chat.TurnResponse, error) {
		return s.opts.Gateway.SendText(ctx, req)
	})
	if err != nil {
		return s.recordFailure(ctx, &pendingSend{text: &req}, chat.TextFailureReply, err)
	}

	s.clearPending()
	s.appendReply(ctx, resp, chat.EmptyTextReply)
	return nil
}

func (s *Session) deliverVoice(ctx context.Context, rec Recording) error {
	req := client.VoiceRequest{
		Audio:       rec.Audio,
		ContentType: rec.ContentType,
		Personality: s.opts.Personality,
		Language:    s.opts.Language,
	}
	resp, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) (*chat.TurnResponse, error) {
		return s.opts.Gateway.SendVoice(ctx, req)
	})
	if err != nil {
		return s.recordFailure(ctx, &pendingSend{voice: &rec}, chat.VoiceFailureReply, err)
	}

	s.clearPending()
	transcript := chat.VoicePlaceholder
	if resp.Transcription != nil && *resp.Transcription != "" {
		transcript = *resp.Transcription
	}
	s.appendMessage(ctx, chat.NewMessage(chat.TypeUser, transcript, s.opts.Now()))
	s.appendReply(ctx, resp, chat.EmptyVoiceReply)
	return nil
}

func (s *Session) appendReply(ctx context.Context, resp *chat.TurnResponse, emptyReply string) {
	content := resp.Response
	if content == "" {
		content = emptyReply
	}
	msg := chat.NewMessage(chat.TypeBot, content, s.opts.Now())
	if resp.TTSAudioURL != nil && *resp.TTSAudioURL != "" {
		msg.TTSAudioURL = resp.TTSAudioURL
	}
	s.appendMessage(ctx, msg)

	if msg.TTSAudioURL != nil && s.opts.Player != nil {
		if err := s.opts.Player.PlayURL(ctx, *msg.TTSAudioURL); err != nil {
			_ = s.fail(fmt.Errorf("%w: %v", client.ErrPlayback, err))
		}
	}
}

func (s *Session) recordFailure(ctx context.Context, pending *pendingSend, reply string, err error) error {
	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()

	msg := chat.NewMessage(chat.TypeBot, reply, s.opts.Now())
	msg.IsError = true
	s.appendMessage(ctx, msg)
	return s.fail(err)
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// appendMessage adds msg to the transcript and persists it. Save errors are
// logged and otherwise ignored.
func (s *Session) appendMessage(ctx context.Context, msg chat.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.opts.Events.Emit(Event{Kind: EventMessage, Message: &msg})

	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.SaveMessage(ctx, msg); err != nil {
		s.opts.Logger.Warn("failed to save message", slog.String("message_id", msg.ID), slog.Any("error", err))
	}
}
