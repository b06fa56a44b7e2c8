// Package history persists each user's chat transcript and serves it newest
// first in fixed-size pages.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibe-companion/backend/internal/model/chat"
)

var (
	// ErrNotFound is returned for an unknown cursor.
	ErrNotFound = errors.New("history: not found")
	// ErrExists is returned when a message id is already stored. Messages
	// are immutable once saved.
	ErrExists = errors.New("history: message already exists")
)

// Store is a per-user message log.
type Store interface {
	// Append saves a new message for uid. An id that is already stored
	// returns ErrExists and leaves the stored message unchanged.
	Append(ctx context.Context, uid string, msg chat.Message) error
	// Page returns up to limit messages older than cursor (the id of the
	// oldest message of the previous page; empty for the newest page).
	Page(ctx context.Context, uid, cursor string, limit int) (chat.Page, error)
	// Clear deletes every message of uid and returns how many were removed.
	Clear(ctx context.Context, uid string) (int, error)
}

// Validate checks a message before it is stored.
func Validate(uid string, msg chat.Message) error {
	switch {
	case strings.TrimSpace(uid) == "":
		return errors.New("history: uid is required")
	case msg.ID == "":
		return errors.New("history: message id is required")
	case msg.Type != chat.TypeUser && msg.Type != chat.TypeBot:
		return fmt.Errorf("history: invalid message type %q", msg.Type)
	case msg.Timestamp == "":
		return errors.New("history: message timestamp is required")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return chat.HistoryPageSize
	}
	return limit
}

// newPage turns a newest-first slice into a display-order page.
func newPage(newestFirst []chat.Message, limit int) chat.Page {
	page := chat.Page{Messages: make([]chat.Message, len(newestFirst)), HasMore: len(newestFirst) == limit}
	for i, m := range newestFirst {
		page.Messages[len(newestFirst)-1-i] = m
	}
	if len(newestFirst) > 0 {
		page.Cursor = newestFirst[len(newestFirst)-1].ID
	}
	return page
}

// newer reports whether a sorts before b in newest-first order.
func newer(a, b chat.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ID > b.ID
}
