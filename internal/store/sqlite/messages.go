package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

const messageColumns = `id, session_id, role, content, tokens_used, created_at`

func scanMessage(row scanner) (*coach.Message, error) {
	var (
		m          coach.Message
		role       string
		tokensUsed sql.NullInt64
		createdAt  string
	)
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &tokensUsed, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	m.Role = coach.Role(role)
	if tokensUsed.Valid {
		n := int(tokensUsed.Int64)
		m.TokensUsed = &n
	}
	return &m, nil
}

// CreateMessage appends a message to its session.
func (s *Store) CreateMessage(ctx context.Context, m *coach.Message) error {
	var tokens sql.NullInt64
	if m.TokensUsed != nil {
		tokens = sql.NullInt64{Int64: int64(*m.TokensUsed), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_coach_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), m.Content, tokens, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]coach.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM ai_coach_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]coach.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}
