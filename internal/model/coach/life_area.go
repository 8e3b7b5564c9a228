package coach

import "time"

// LifeArea is a coaching topic owned by one user.
type LifeArea struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Color       *string   `json:"color"`
	Icon        *string   `json:"icon"`
	IsActive    bool      `json:"isActive"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LifeAreaInput creates a life area.
type LifeAreaInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon"`
	IsActive    *bool   `json:"isActive"`
}

// LifeAreaUpdate is a partial life area change.
type LifeAreaUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon"`
	IsActive    *bool   `json:"isActive"`
}

// Apply returns a with the non-nil fields of u applied.
func (u LifeAreaUpdate) Apply(a LifeArea) LifeArea {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Description != nil {
		a.Description = u.Description
	}
	if u.Color != nil {
		a.Color = u.Color
	}
	if u.Icon != nil {
		a.Icon = u.Icon
	}
	if u.IsActive != nil {
		a.IsActive = *u.IsActive
	}
	return a
}
