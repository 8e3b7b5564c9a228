package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	"github.com/zhouzirui/daybook/backend/internal/model/journal"
	"github.com/zhouzirui/daybook/backend/internal/service/ai"
	"github.com/zhouzirui/daybook/backend/internal/store/sqlite"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrLifeAreaNotFound = errors.New("life area not found")
	ErrPromptNotFound   = errors.New("prompt not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrEmptyMessage     = errors.New("message content is required")
	ErrAIUnavailable    = errors.New("ai coach is not configured")
)

// Repository is the relational store behind the coach.
type Repository interface {
	CreateLifeArea(ctx context.Context, a *coach.LifeArea) error
	GetLifeArea(ctx context.Context, userID, id string) (*coach.LifeArea, error)
	ListLifeAreas(ctx context.Context, userID string) ([]coach.LifeArea, error)
	UpdateLifeArea(ctx context.Context, a *coach.LifeArea) error
	DeleteLifeArea(ctx context.Context, userID, id string) error

	CreatePrompt(ctx context.Context, p *coach.Prompt) error
	ListPrompts(ctx context.Context, userID string) ([]coach.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*coach.Prompt, error)
	ActivePromptForLifeArea(ctx context.Context, lifeAreaID string) (*coach.Prompt, error)
	ActiveGlobalPrompt(ctx context.Context) (*coach.Prompt, error)

	CreateSession(ctx context.Context, sess *coach.Session) error
	GetSession(ctx context.Context, userID, id string) (*coach.Session, error)
	ListSessions(ctx context.Context, userID string) ([]coach.Session, error)
	SetSessionActive(ctx context.Context, userID, id string, active bool) error
	UpdateSessionSummary(ctx context.Context, userID, id, summary string) error
	EndSession(ctx context.Context, userID, id string, endedAt time.Time) error

	UpsertTag(ctx context.Context, userID string, tag journal.Tag) error
	AttachTag(ctx context.Context, sessionID, tagID string) error
	DetachTag(ctx context.Context, sessionID, tagID string) error

	CreateMessage(ctx context.Context, m *coach.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]coach.Message, error)
}

// Responder produces coach replies.
type Responder interface {
	Reply(ctx context.Context, turn ai.Turn) (*ai.Reply, error)
	StreamReply(ctx context.Context, turn ai.Turn) (*schema.StreamReader[*schema.Message], error)
	StreamingEnabled() bool
}

// TagSource resolves journal tags by id.
type TagSource interface {
	GetTag(ctx context.Context, id string) (journal.Tag, error)
}

// Exchange is one persisted user/assistant round trip.
type Exchange struct {
	UserMessage      coach.Message  `json:"userMessage"`
	AssistantMessage *coach.Message `json:"assistantMessage"`
}

// Service implements life areas, prompts, sessions and messaging.
type Service struct {
	repo    Repository
	ai      Responder
	tags    TagSource
	prompts *ai.CoachPromptManager
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the coach. responder may be nil when no model is configured;
// messaging then fails with ErrAIUnavailable.
func NewService(repo Repository, responder Responder, tags TagSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		ai:      responder,
		tags:    tags,
		prompts: ai.NewCoachPromptManager(),
		logger:  logger.With("component", "coach"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func mapNotFound(err, sentinel error) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return sentinel
	}
	return err
}

// ListLifeAreas returns the user's life areas by name.
func (s *Service) ListLifeAreas(ctx context.Context, userID string) ([]coach.LifeArea, error) {
	return s.repo.ListLifeAreas(ctx, userID)
}

// CreateLifeArea stores a new life area; it is active unless stated otherwise.
func (s *Service) CreateLifeArea(ctx context.Context, userID string, in coach.LifeAreaInput) (coach.LifeArea, error) {
	now := s.now()
	area := coach.LifeArea{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Color:       in.Color,
		Icon:        in.Icon,
		IsActive:    in.IsActive == nil || *in.IsActive,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateLifeArea(ctx, &area); err != nil {
		return coach.LifeArea{}, fmt.Errorf("create life area: %w", err)
	}
	return area, nil
}

// UpdateLifeArea applies a partial change.
func (s *Service) UpdateLifeArea(ctx context.Context, userID, id string, u coach.LifeAreaUpdate) (coach.LifeArea, error) {
	current, err := s.repo.GetLifeArea(ctx, userID, id)
	if err != nil {
		return coach.LifeArea{}, mapNotFound(err, ErrLifeAreaNotFound)
	}

	updated := u.Apply(*current)
	updated.UpdatedAt = s.now()
	if err := s.repo.UpdateLifeArea(ctx, &updated); err != nil {
		return coach.LifeArea{}, mapNotFound(err, ErrLifeAreaNotFound)
	}
	return updated, nil
}

// DeleteLifeArea removes a life area. Sessions keep running without it.
func (s *Service) DeleteLifeArea(ctx context.Context, userID, id string) error {
	return mapNotFound(s.repo.DeleteLifeArea(ctx, userID, id), ErrLifeAreaNotFound)
}

// CreatePrompt stores a system prompt, active unless stated otherwise.
func (s *Service) CreatePrompt(ctx context.Context, userID string, in coach.PromptInput) (coach.Prompt, error) {
	if in.LifeAreaID != nil {
		if _, err := s.repo.GetLifeArea(ctx, userID, *in.LifeAreaID); err != nil {
			return coach.Prompt{}, mapNotFound(err, ErrLifeAreaNotFound)
		}
	}

	now := s.now()
	p := coach.Prompt{
		ID:           s.newID(),
		Name:         strings.TrimSpace(in.Name),
		SystemPrompt: in.SystemPrompt,
		LifeAreaID:   in.LifeAreaID,
		IsActive:     in.IsActive == nil || *in.IsActive,
		IsGlobal:     in.IsGlobal,
		UserID:       userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreatePrompt(ctx, &p); err != nil {
		return coach.Prompt{}, fmt.Errorf("create prompt: %w", err)
	}
	return p, nil
}

// ListPrompts returns the user's prompts plus global ones.
func (s *Service) ListPrompts(ctx context.Context, userID string) ([]coach.Prompt, error) {
	return s.repo.ListPrompts(ctx, userID)
}

// ActivePromptFor returns the newest active prompt of a life area, falling
// back to the newest active global prompt.
func (s *Service) ActivePromptFor(ctx context.Context, lifeAreaID string) (*coach.Prompt, error) {
	if lifeAreaID != "" {
		p, err := s.repo.ActivePromptForLifeArea(ctx, lifeAreaID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, sqlite.ErrNotFound) {
			return nil, err
		}
	}

	p, err := s.repo.ActiveGlobalPrompt(ctx)
	if err != nil {
		return nil, mapNotFound(err, ErrPromptNotFound)
	}
	return p, nil
}

// CreateSession opens an active session with no tags.
func (s *Service) CreateSession(ctx context.Context, userID string, in coach.NewSession) (coach.Session, error) {
	if in.LifeAreaID != nil {
		if _, err := s.repo.GetLifeArea(ctx, userID, *in.LifeAreaID); err != nil {
			return coach.Session{}, mapNotFound(err, ErrLifeAreaNotFound)
		}
	}
	if in.PromptID != nil {
		if _, err := s.repo.GetPrompt(ctx, *in.PromptID); err != nil {
			return coach.Session{}, mapNotFound(err, ErrPromptNotFound)
		}
	}

	sess := coach.Session{
		ID:         s.newID(),
		Title:      strings.TrimSpace(in.Title),
		LifeAreaID: in.LifeAreaID,
		PromptID:   in.PromptID,
		IsActive:   true,
		StartedAt:  s.now(),
		Tags:       []journal.Tag{},
		UserID:     userID,
	}
	if err := s.repo.CreateSession(ctx, &sess); err != nil {
		return coach.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session created", "session", sess.ID, "user", userID)
	return sess, nil
}

// ListSessions returns the user's sessions, newest first, with their tags.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]coach.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// GetSession returns one of the user's sessions.
func (s *Service) GetSession(ctx context.Context, userID, id string) (coach.Session, error) {
	sess, err := s.repo.GetSession(ctx, userID, id)
	if err != nil {
		return coach.Session{}, mapNotFound(err, ErrSessionNotFound)
	}
	return *sess, nil
}

// UpdateSession applies the active flag, summary and end marker in that order.
// Ending a session also deactivates it.
func (s *Service) UpdateSession(ctx context.Context, userID, id string, u coach.SessionUpdate) (coach.Session, error) {
	if _, err := s.GetSession(ctx, userID, id); err != nil {
		return coach.Session{}, err
	}

	if u.IsActive != nil {
		if err := s.repo.SetSessionActive(ctx, userID, id, *u.IsActive); err != nil {
			return coach.Session{}, mapNotFound(err, ErrSessionNotFound)
		}
	}
	if u.Summary != nil {
		if err := s.repo.UpdateSessionSummary(ctx, userID, id, *u.Summary); err != nil {
			return coach.Session{}, mapNotFound(err, ErrSessionNotFound)
		}
	}
	if u.Ended != nil && *u.Ended {
		if err := s.repo.EndSession(ctx, userID, id, s.now()); err != nil {
			return coach.Session{}, mapNotFound(err, ErrSessionNotFound)
		}
		if err := s.repo.SetSessionActive(ctx, userID, id, false); err != nil {
			return coach.Session{}, mapNotFound(err, ErrSessionNotFound)
		}
	}

	return s.GetSession(ctx, userID, id)
}

// TagSession attaches a journal tag to a session. Attaching twice is a no-op.
func (s *Service) TagSession(ctx context.Context, userID, sessionID, tagID string) (coach.Session, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return coach.Session{}, err
	}
	tag, err := s.tags.GetTag(ctx, tagID)
	if err != nil {
		return coach.Session{}, ErrTagNotFound
	}
	if err := s.repo.UpsertTag(ctx, userID, tag); err != nil {
		return coach.Session{}, fmt.Errorf("store tag: %w", err)
	}
	if err := s.repo.AttachTag(ctx, sessionID, tag.ID); err != nil {
		return coach.Session{}, fmt.Errorf("attach tag: %w", err)
	}
	return s.GetSession(ctx, userID, sessionID)
}

// UntagSession detaches a tag from a session.
func (s *Service) UntagSession(ctx context.Context, userID, sessionID, tagID string) (coach.Session, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return coach.Session{}, err
	}
	if err := s.repo.DetachTag(ctx, sessionID, tagID); err != nil {
		return coach.Session{}, fmt.Errorf("detach tag: %w", err)
	}
	return s.GetSession(ctx, userID, sessionID)
}

// ListMessages returns a session's messages oldest first.
func (s *Service) ListMessages(ctx context.Context, userID, sessionID string) ([]coach.Message, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID)
}

// Converse asks the coach for a reply to content within a session without
// persisting anything.
func (s *Service) Converse(ctx context.Context, userID, sessionID, content string) (*ai.Reply, error) {
	if s.ai == nil {
		return nil, ErrAIUnavailable
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	turn, err := s.buildTurn(ctx, userID, sessionID, content)
	if err != nil {
		return nil, err
	}
	return s.ai.Reply(ctx, turn)
}

// SendMessage persists the user message, asks the coach, then persists the
// reply. When the coach fails the user message stays stored and the error is
// returned together with the partial exchange.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID, content string) (Exchange, error) {
	if s.ai == nil {
		return Exchange{}, ErrAIUnavailable
	}
	userMsg, err := s.saveUserMessage(ctx, userID, sessionID, content)
	if err != nil {
		return Exchange{}, err
	}
	exchange := Exchange{UserMessage: userMsg}

	turn, err := s.buildTurn(ctx, userID, sessionID, userMsg.Content)
	if err != nil {
		return exchange, err
	}
	reply, err := s.ai.Reply(ctx, turn)
	if err != nil {
		s.logger.Error("coach reply failed", "session", sessionID, "error", err)
		return exchange, err
	}

	assistant, err := s.saveAssistantMessage(ctx, sessionID, reply)
	if err != nil {
		return exchange, err
	}
	exchange.AssistantMessage = &assistant
	return exchange, nil
}

// StreamMessage is SendMessage with incremental output: every content delta
// is passed to emit before the assembled reply is persisted. When streaming is
// disabled the whole reply is emitted once.
func (s *Service) StreamMessage(ctx context.Context, userID, sessionID, content string, emit func(delta string)) (Exchange, error) {
	if s.ai == nil {
		return Exchange{}, ErrAIUnavailable
	}
	userMsg, err := s.saveUserMessage(ctx, userID, sessionID, content)
	if err != nil {
		return Exchange{}, err
	}
	exchange := Exchange{UserMessage: userMsg}

	turn, err := s.buildTurn(ctx, userID, sessionID, userMsg.Content)
	if err != nil {
		return exchange, err
	}

	var reply *ai.Reply
	if s.ai.StreamingEnabled() {
		reply, err = s.streamReply(ctx, turn, emit)
	} else {
		reply, err = s.ai.Reply(ctx, turn)
		if err == nil {
			emit(reply.Content)
		}
	}
	if err != nil {
		s.logger.Error("coach stream failed", "session", sessionID, "error", err)
		return exchange, err
	}

	assistant, err := s.saveAssistantMessage(ctx, sessionID, reply)
	if err != nil {
		return exchange, err
	}
	exchange.AssistantMessage = &assistant
	return exchange, nil
}

func (s *Service) streamReply(ctx context.Context, turn ai.Turn, emit func(string)) (*ai.Reply, error) {
	stream, err := s.ai.StreamReply(ctx, turn)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive stream chunk: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			emit(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return &ai.Reply{Role: string(coach.RoleAssistant)}, nil
	}
	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("merge stream chunks: %w", err)
	}
	reply := &ai.Reply{Role: string(coach.RoleAssistant), Content: merged.Content}
	if merged.ResponseMeta != nil && merged.ResponseMeta.Usage != nil {
		reply.Usage.TotalTokens = merged.ResponseMeta.Usage.TotalTokens
	}
	return reply, nil
}

func (s *Service) saveUserMessage(ctx context.Context, userID, sessionID, content string) (coach.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return coach.Message{}, ErrEmptyMessage
	}
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return coach.Message{}, err
	}

	msg := coach.Message{
		ID:        s.newID(),
		SessionID: sessionID,
		Role:      coach.RoleUser,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateMessage(ctx, &msg); err != nil {
		return coach.Message{}, fmt.Errorf("save user message: %w", err)
	}
	return msg, nil
}

func (s *Service) saveAssistantMessage(ctx context.Context, sessionID string, reply *ai.Reply) (coach.Message, error) {
	msg := coach.Message{
		ID:        s.newID(),
		SessionID: sessionID,
		Role:      coach.RoleAssistant,
		Content:   reply.Content,
		CreatedAt: s.now(),
	}
	if reply.Usage.TotalTokens > 0 {
		tokens := reply.Usage.TotalTokens
		msg.TokensUsed = &tokens
	}
	if err := s.repo.CreateMessage(ctx, &msg); err != nil {
		return coach.Message{}, fmt.Errorf("save assistant message: %w", err)
	}
	return msg, nil
}

// buildTurn resolves the system prompt and history for a session. The prompt
// comes from the session's own prompt, then its life area, then the newest
// global prompt, then the built-in coach template.
func (s *Service) buildTurn(ctx context.Context, userID, sessionID, query string) (ai.Turn, error) {
	sess, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return ai.Turn{}, err
	}

	var area *coach.LifeArea
	if sess.LifeAreaID != nil {
		area, err = s.repo.GetLifeArea(ctx, userID, *sess.LifeAreaID)
		if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
			return ai.Turn{}, err
		}
	}

	stored, err := s.resolvePrompt(ctx, sess)
	if err != nil {
		return ai.Turn{}, err
	}

	history, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return ai.Turn{}, fmt.Errorf("load history: %w", err)
	}
	if hasMatchingUserMessage(history, query) {
		history = history[:len(history)-1]
	}

	return ai.Turn{
		System:  s.prompts.BuildSystemPrompt(stored, area),
		History: history,
		Query:   query,
	}, nil
}

func (s *Service) resolvePrompt(ctx context.Context, sess coach.Session) (*coach.Prompt, error) {
	if sess.PromptID != nil {
		p, err := s.repo.GetPrompt(ctx, *sess.PromptID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, sqlite.ErrNotFound) {
			return nil, err
		}
	}

	var lifeAreaID string
	if sess.LifeAreaID != nil {
		lifeAreaID = *sess.LifeAreaID
	}
	p, err := s.ActivePromptFor(ctx, lifeAreaID)
	if errors.Is(err, ErrPromptNotFound) {
		return nil, nil
	}
	return p, err
}

// hasMatchingUserMessage reports whether the last stored message is the
// pending user query, which the prompt template appends on its own.
func hasMatchingUserMessage(messages []coach.Message, content string) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1]
	return last.Role == coach.RoleUser && last.Content == content
}
