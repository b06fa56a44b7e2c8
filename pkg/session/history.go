package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vibe-companion/backend/internal/model/chat"
)

// LoadInitial replaces the transcript with the newest page of history. An
// empty history keeps the welcome message.
func (s *Session) LoadInitial(ctx context.Context) error {
	if err := s.beginHistoryLoad(); err != nil {
		return err
	}
	if s.opts.History == nil {
		s.endHistoryLoad(HistoryLoaded)
		return nil
	}

	page, err := s.opts.History.HistoryPage(ctx, "", s.opts.PageSize)
	if err != nil {
		s.endHistoryLoad(HistoryIdle)
		return s.fail(fmt.Errorf("load history: %w", err))
	}

	s.mu.Lock()
	if len(page.Messages) == 0 {
		s.messages = []chat.Message{chat.Welcome(s.opts.Now())}
		s.cursor = ""
		s.hasMore = false
	} else {
		s.messages = append([]chat.Message(nil), page.Messages...)
		s.cursor = page.Cursor
		s.hasMore = len(page.Messages) == s.opts.PageSize
	}
	s.mu.Unlock()

	s.endHistoryLoad(HistoryLoaded)
	return nil
}

// LoadOlder prepends the next older page. It is a no-op once history is
// exhausted.
func (s *Session) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	cursor, hasMore := s.cursor, s.hasMore
	s.mu.Unlock()
	if s.opts.History == nil || cursor == "" || !hasMore {
		return nil
	}

	if err := s.beginHistoryLoad(); err != nil {
		return err
	}
	page, err := s.opts.History.HistoryPage(ctx, cursor, s.opts.PageSize)
	if err != nil {
		s.endHistoryLoad(HistoryLoaded)
		return s.fail(fmt.Errorf("load older messages: %w", err))
	}

	s.mu.Lock()
	if len(page.Messages) > 0 {
		s.messages = append(append([]chat.Message(nil), page.Messages...), s.messages...)
		s.cursor = page.Cursor
	}
	s.hasMore = len(page.Messages) == s.opts.PageSize
	s.mu.Unlock()

	s.endHistoryLoad(HistoryLoaded)
	return nil
}

// ClearHistory deletes the stored history and resets the transcript to the
// welcome message. A pending retry is dropped with it.
func (s *Session) ClearHistory(ctx context.Context) error {
	if s.opts.History == nil {
		return nil
	}
	if err := s.beginHistoryLoad(); err != nil {
		return err
	}
	n, err := s.opts.History.ClearHistory(ctx)
	if err != nil {
		s.endHistoryLoad(HistoryLoaded)
		return s.fail(fmt.Errorf("clear history: %w", err))
	}

	s.mu.Lock()
	s.messages = []chat.Message{chat.Welcome(s.opts.Now())}
	s.cursor = ""
	s.hasMore = false
	s.pending = nil
	s.mu.Unlock()

	s.opts.Logger.Info("chat history cleared", slog.Int("deleted", n))
	s.endHistoryLoad(HistoryLoaded)
	return nil
}

func (s *Session) beginHistoryLoad() error {
	s.mu.Lock()
	if s.historyState == HistoryLoading {
		s.mu.Unlock()
		return fmt.Errorf("%w: history already loading", ErrInvalidTransition)
	}
	s.historyState = HistoryLoading
	s.mu.Unlock()
	s.opts.Events.Emit(Event{Kind: EventHistoryChanged, History: HistoryLoading})
	return nil
}

func (s *Session) endHistoryLoad(next HistoryState) {
	s.mu.Lock()
	s.historyState = next
	s.mu.Unlock()
	s.opts.Events.Emit(Event{Kind: EventHistoryChanged, History: next})
}
