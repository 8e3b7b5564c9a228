package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

// lifeAreaColumns must match the scan order in scanLifeArea.
const lifeAreaColumns = `id, name, description, color, icon, is_active, user_id, created_at, updated_at`

func scanLifeArea(row scanner) (*coach.LifeArea, error) {
	var (
		a           coach.LifeArea
		description sql.NullString
		color       sql.NullString
		icon        sql.NullString
		isActive    int
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&a.ID, &a.Name, &description, &color, &icon, &isActive, &a.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	a.Description = stringPtr(description)
	a.Color = stringPtr(color)
	a.Icon = stringPtr(icon)
	a.IsActive = isActive != 0
	return &a, nil
}

// CreateLifeArea inserts a life area.
func (s *Store) CreateLifeArea(ctx context.Context, a *coach.LifeArea) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO life_areas (`+lifeAreaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name,
		nullableString(a.Description), nullableString(a.Color), nullableString(a.Icon),
		boolInt(a.IsActive), a.UserID,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert life area: %w", err)
	}
	return nil
}

// GetLifeArea returns a life area owned by userID.
func (s *Store) GetLifeArea(ctx context.Context, userID, id string) (*coach.LifeArea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lifeAreaColumns+` FROM life_areas WHERE id = ? AND user_id = ?`, id, userID)
	a, err := scanLifeArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get life area: %w", err)
	}
	return a, nil
}

// ListLifeAreas returns the user's life areas ordered by name.
func (s *Store) ListLifeAreas(ctx context.Context, userID string) ([]coach.LifeArea, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+lifeAreaColumns+` FROM life_areas WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list life areas: %w", err)
	}
	defer rows.Close()

	areas := make([]coach.LifeArea, 0)
	for rows.Next() {
		a, err := scanLifeArea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan life area: %w", err)
		}
		areas = append(areas, *a)
	}
	return areas, rows.Err()
}

// UpdateLifeArea overwrites the mutable columns of a life area.
func (s *Store) UpdateLifeArea(ctx context.Context, a *coach.LifeArea) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE life_areas
		SET name = ?, description = ?, color = ?, icon = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		a.Name, nullableString(a.Description), nullableString(a.Color), nullableString(a.Icon),
		boolInt(a.IsActive), formatTime(a.UpdatedAt),
		a.ID, a.UserID,
	)
	if err != nil {
		return fmt.Errorf("update life area: %w", err)
	}
	return rowsAffected(res)
}

// DeleteLifeArea removes a life area. Sessions and prompts keep a NULL reference.
func (s *Store) DeleteLifeArea(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM life_areas WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete life area: %w", err)
	}
	return rowsAffected(res)
}
