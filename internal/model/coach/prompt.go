package coach

import "time"

// Prompt is a stored system prompt, either scoped to a life area or global.
type Prompt struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	LifeAreaID   *string   `json:"lifeAreaId"`
	IsActive     bool      `json:"isActive"`
	IsGlobal     bool      `json:"isGlobal"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PromptInput creates a prompt.
type PromptInput struct {
	Name         string  `json:"name" validate:"required"`
	SystemPrompt string  `json:"systemPrompt" validate:"required"`
	LifeAreaID   *string `json:"lifeAreaId"`
	IsActive     *bool   `json:"isActive"`
	IsGlobal     bool    `json:"isGlobal"`
}
