package coach

import (
	"time"

	"github.com/zhouzirui/daybook/backend/internal/model/journal"
)

// Session is a conversation thread between a user and the coach.
type Session struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Summary    *string       `json:"summary"`
	LifeAreaID *string       `json:"lifeAreaId"`
	PromptID   *string       `json:"promptId"`
	IsActive   bool          `json:"isActive"`
	StartedAt  time.Time     `json:"startedAt"`
	EndedAt    *time.Time    `json:"endedAt"`
	Tags       []journal.Tag `json:"tags"`
	UserID     string        `json:"userId"`
}

// NewSession is the caller-supplied part of a session.
type NewSession struct {
	Title      string  `json:"title" validate:"required,max=200"`
	LifeAreaID *string `json:"lifeAreaId"`
	PromptID   *string `json:"promptId"`
}

// SessionUpdate is a partial session change.
type SessionUpdate struct {
	IsActive *bool   `json:"isActive"`
	Summary  *string `json:"summary"`
	Ended    *bool   `json:"ended"`
}
