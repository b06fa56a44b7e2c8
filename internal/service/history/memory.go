package history

import (
	"context"
	"sort"
	"sync"

	"github.com/vibe-companion/backend/internal/model/chat"
)

// Memory keeps history in process memory.
type Memory struct {
	mu    sync.RWMutex
	users map[string]map[string]chat.Message
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]map[string]chat.Message)}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, uid string, msg chat.Message) error {
	if err := Validate(uid, msg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.users[uid]
	if !ok {
		msgs = make(map[string]chat.Message)
		m.users[uid] = msgs
	}
	if _, dup := msgs[msg.ID]; dup {
		return ErrExists
	}
	msgs[msg.ID] = msg
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context, uid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.users[uid])
	delete(m.users, uid)
	return n, nil
}

// Page implements Store.
func (m *Memory) Page(_ context.Context, uid, cursor string, limit int) (chat.Page, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.users[uid]
	var after *chat.Message
	if cursor != "" {
		c, ok := msgs[cursor]
		if !ok {
			return chat.Page{}, ErrNotFound
		}
		after = &c
	}

	sorted := make([]chat.Message, 0, len(msgs))
	for _, msg := range msgs {
		if after == nil || newer(*after, msg) {
			sorted = append(sorted, msg)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return newer(sorted[i], sorted[j]) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return newPage(sorted, limit), nil
}
