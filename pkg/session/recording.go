package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibe-companion/backend/pkg/client"
)

var errNoDevice = errors.New("session: no capture device")

// StartRecording acquires the microphone. It fails fast with
// client.ErrOffline when the network is down. A held recording is dropped.
func (s *Session) StartRecording(ctx context.Context) error {
	if !s.online() {
		return s.fail(fmt.Errorf("start recording: %w", client.ErrOffline))
	}
	if s.opts.Capture == nil {
		return s.fail(errNoDevice)
	}
	if err := s.transition(StateRecording, StateIdle, StateRecorded); err != nil {
		return err
	}

	s.mu.Lock()
	s.recording = nil
	s.mu.Unlock()

	if err := s.opts.Capture.Start(ctx); err != nil {
		s.setState(StateIdle)
		return s.fail(fmt.Errorf("start recording: %w", err))
	}
	return nil
}

// StopRecording releases the microphone and holds the captured audio.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	if s.state != StateRecording {
		current := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StateRecorded)
	}
	s.mu.Unlock()

	rec, err := s.opts.Capture.Stop()
	if err != nil {
		s.setState(StateIdle)
		return s.fail(fmt.Errorf("stop recording: %w", err))
	}

	s.mu.Lock()
	s.recording = &rec
	s.mu.Unlock()
	s.setState(StateRecorded)
	return nil
}

// PlayRecording plays back the held recording.
func (s *Session) PlayRecording(ctx context.Context) error {
	s.mu.Lock()
	rec := s.recording
	state := s.state
	s.mu.Unlock()
	if state != StateRecorded || rec == nil {
		return fmt.Errorf("%w: play in %s", ErrInvalidTransition, state)
	}
	if s.opts.Player == nil {
		return nil
	}
	if err := s.opts.Player.PlayRecording(ctx, *rec); err != nil {
		return s.fail(fmt.Errorf("%w: %v", client.ErrPlayback, err))
	}
	return nil
}

// DiscardRecording drops the held recording.
func (s *Session) DiscardRecording() error {
	if err := s.transition(StateIdle, StateRecorded); err != nil {
		return err
	}
	s.mu.Lock()
	s.recording = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.opts.Events.Emit(Event{Kind: EventStateChanged, State: next})
}
