package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

const promptColumns = `id, name, system_prompt, life_area_id, is_active, is_global, user_id, created_at, updated_at`

func scanPrompt(row scanner) (*coach.Prompt, error) {
	var (
		p          coach.Prompt
		lifeAreaID sql.NullString
		isActive   int
		isGlobal   int
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SystemPrompt, &lifeAreaID, &isActive, &isGlobal, &p.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	p.LifeAreaID = stringPtr(lifeAreaID)
	p.IsActive = isActive != 0
	p.IsGlobal = isGlobal != 0
	return &p, nil
}

// CreatePrompt inserts a prompt.
func (s *Store) CreatePrompt(ctx context.Context, p *coach.Prompt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_coach_prompts (`+promptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SystemPrompt, nullableString(p.LifeAreaID),
		boolInt(p.IsActive), boolInt(p.IsGlobal), p.UserID,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

// ListPrompts returns the user's prompts plus all global prompts, newest first.
func (s *Store) ListPrompts(ctx context.Context, userID string) ([]coach.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptColumns+` FROM ai_coach_prompts
		WHERE user_id = ? OR is_global = 1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	prompts := make([]coach.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// GetPrompt returns a prompt by id.
func (s *Store) GetPrompt(ctx context.Context, id string) (*coach.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM ai_coach_prompts WHERE id = ?`, id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return p, nil
}

// ActivePromptForLifeArea returns the most recently updated active prompt of
// a life area.
func (s *Store) ActivePromptForLifeArea(ctx context.Context, lifeAreaID string) (*coach.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+promptColumns+` FROM ai_coach_prompts
		WHERE life_area_id = ? AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT 1`, lifeAreaID)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active prompt: %w", err)
	}
	return p, nil
}

// ActiveGlobalPrompt returns the most recently updated active global prompt.
func (s *Store) ActiveGlobalPrompt(ctx context.Context) (*coach.Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+promptColumns+` FROM ai_coach_prompts
		WHERE is_global = 1 AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT 1`)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active global prompt: %w", err)
	}
	return p, nil
}
