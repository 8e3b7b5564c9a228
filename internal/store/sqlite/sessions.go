package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

// sessionColumns must match the scan order in scanSession.
const sessionColumns = `id, title, summary, life_area_id, prompt_id, is_active, started_at, ended_at, user_id`

func scanSession(row scanner) (*coach.Session, error) {
	var (
		sess       coach.Session
		summary    sql.NullString
		lifeAreaID sql.NullString
		promptID   sql.NullString
		isActive   int
		startedAt  string
		endedAt    sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Title, &summary, &lifeAreaID, &promptID, &isActive, &startedAt, &endedAt, &sess.UserID)
	if err != nil {
		return nil, err
	}

	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if sess.EndedAt, err = parseNullableTime(endedAt); err != nil {
		return nil, err
	}
	sess.Summary = stringPtr(summary)
	sess.LifeAreaID = stringPtr(lifeAreaID)
	sess.PromptID = stringPtr(promptID)
	sess.IsActive = isActive != 0
	sess.Tags = []journal.Tag{}
	return &sess, nil
}

// CreateSession inserts a session. Tags are attached separately.
func (s *Store) CreateSession(ctx context.Context, sess *coach.Session) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_coach_sessions (`+sessionColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, nullableString(sess.Summary),
		nullableString(sess.LifeAreaID), nullableString(sess.PromptID),
		boolInt(sess.IsActive), formatTime(sess.StartedAt), nullTimeString(sess.EndedAt),
		sess.UserID, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session with its tags.
func (s *Store) GetSession(ctx context.Context, userID, id string) (*coach.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM ai_coach_sessions WHERE id = ? AND user_id = ?`, id, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	tags, err := s.sessionTags(ctx, `st.session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if t, ok := tags[id]; ok {
		sess.Tags = t
	}
	return sess, nil
}

// ListSessions returns the user's sessions, most recently started first, each
// joined with its tags through ai_session_tags.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]coach.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM ai_coach_sessions
		WHERE user_id = ?
		ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]coach.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := s.sessionTags(ctx, `s.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if t, ok := tags[sessions[i].ID]; ok {
			sessions[i].Tags = t
		}
	}
	return sessions, nil
}

// sessionTags loads tags grouped by session id for the sessions matched by where.
func (s *Store) sessionTags(ctx context.Context, where string, arg any) (map[string][]journal.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.session_id, t.id, t.name, t.color, t.description
		FROM ai_session_tags st
		JOIN tags t ON t.id = st.tag_id
		JOIN ai_coach_sessions s ON s.id = st.session_id
		WHERE `+where+`
		ORDER BY st.created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("load session tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]journal.Tag)
	for rows.Next() {
		var (
			sessionID   string
			tag         journal.Tag
			color       sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(&sessionID, &tag.ID, &tag.Name, &color, &description); err != nil {
			return nil, fmt.Errorf("scan session tag: %w", err)
		}
		tag.Color = color.String
		tag.Description = description.String
		out[sessionID] = append(out[sessionID], tag)
	}
	return out, rows.Err()
}

// SetSessionActive flips the active flag.
func (s *Store) SetSessionActive(ctx context.Context, userID, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_coach_sessions SET is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		boolInt(active), formatTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("set session active: %w", err)
	}
	return rowsAffected(res)
}

// UpdateSessionSummary stores the session summary.
func (s *Store) UpdateSessionSummary(ctx context.Context, userID, id, summary string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_coach_sessions SET summary = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		summary, formatTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("update session summary: %w", err)
	}
	return rowsAffected(res)
}

// EndSession marks a session inactive and records when it ended.
func (s *Store) EndSession(ctx context.Context, userID, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_coach_sessions SET is_active = 0, ended_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		formatTime(endedAt), formatTime(time.Now()), id, userID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return rowsAffected(res)
}
