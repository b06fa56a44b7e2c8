package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vibe-companion/backend/internal/model/chat"
)

// SQLite stores history in the embedded database opened by sqlitedb.Open.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps db.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Append implements Store.
func (s *SQLite) Append(ctx context.Context, uid string, msg chat.Message) error {
	if err := Validate(uid, msg); err != nil {
		return err
	}
	var url sql.NullString
	if msg.TTSAudioURL != nil {
		url = sql.NullString{String: *msg.TTSAudioURL, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (uid, id, type, content, timestamp, tts_audio_url, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid, id) DO NOTHING`,
		uid, msg.ID, string(msg.Type), msg.Content, msg.Timestamp, url, msg.IsError)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context, uid string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE uid = ?`, uid)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return int(n), nil
}

// Page implements Store.
func (s *SQLite) Page(ctx context.Context, uid, cursor string, limit int) (chat.Page, error) {
	limit = normalizeLimit(limit)

	var (
		rows *sql.Rows
		err  error
	)
	if cursor == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, type, content, timestamp, tts_audio_url, is_error FROM messages
			WHERE uid = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?`, uid, limit)
	} else {
		var ts string
		err = s.db.QueryRowContext(ctx, `SELECT timestamp FROM messages WHERE uid = ? AND id = ?`, uid, cursor).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Page{}, ErrNotFound
		}
		if err != nil {
			return chat.Page{}, fmt.Errorf("lookup cursor: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, type, content, timestamp, tts_audio_url, is_error FROM messages
			WHERE uid = ? AND (timestamp < ? OR (timestamp = ? AND id < ?))
			ORDER BY timestamp DESC, id DESC
			LIMIT ?`, uid, ts, ts, cursor, limit)
	}
	if err != nil {
		return chat.Page{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg     chat.Message
			msgType string
			url     sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msgType, &msg.Content, &msg.Timestamp, &url, &msg.IsError); err != nil {
			return chat.Page{}, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = chat.Type(msgType)
		if url.Valid {
			u := url.String
			msg.TTSAudioURL = &u
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return chat.Page{}, fmt.Errorf("iterate messages: %w", err)
	}
	return newPage(msgs, limit), nil
}
