package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

// UpsertTag stores a copy of a journal tag so sessions can reference it.
func (s *Store) UpsertTag(ctx context.Context, userID string, tag journal.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, description, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			description = excluded.description`,
		tag.ID, tag.Name, nullString(tag.Color), nullString(tag.Description),
		userID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert tag: %w", err)
	}
	return nil
}

// AttachTag links a tag to a session. Attaching twice is a no-op.
func (s *Store) AttachTag(ctx context.Context, sessionID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_session_tags (session_id, tag_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, tag_id) DO NOTHING`,
		sessionID, tagID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// DetachTag unlinks a tag from a session.
func (s *Store) DetachTag(ctx context.Context, sessionID, tagID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_session_tags WHERE session_id = ? AND tag_id = ?`, sessionID, tagID)
	if err != nil {
		return fmt.Errorf("detach tag: %w", err)
	}
	return rowsAffected(res)
}
