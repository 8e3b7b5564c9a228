package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/daybook/backend/internal/config"
	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

const defaultHistoryLimit = 10

// ErrStreamingDisabled is returned by StreamReply when ARK_STREAM is off.
var ErrStreamingDisabled = errors.New("streaming disabled in configuration")

// Usage mirrors the provider's token accounting.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Reply is one completed model turn.
type Reply struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Usage   Usage  `json:"-"`
}

// Turn is the input of a coach conversation step.
type Turn struct {
	System  string
	History []coach.Message
	Query   string
}

// Service encapsulates AI-powered coaching.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *slog.Logger
}

// NewService creates the Ark chat model from cfg and compiles the coach chain.
func NewService(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg, logger)
}

// NewServiceWithModel builds the service around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
		logger:    logger.With("component", "ai"),
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Complete sends [system, ...messages] to the model as-is. An empty system
// prompt is omitted.
func (s *Service) Complete(ctx context.Context, systemPrompt string, messages []*schema.Message) (*Reply, error) {
	input := make([]*schema.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		input = append(input, schema.SystemMessage(systemPrompt))
	}
	input = append(input, messages...)

	response, err := s.chatModel.Generate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat model: %w", err)
	}

	reply := toReply(response)
	s.logger.Info("completion generated", "messages", len(input), "length", len(reply.Content), "tokens", reply.Usage.TotalTokens)
	return reply, nil
}

// Reply runs one coach turn through the prompt chain.
func (s *Service) Reply(ctx context.Context, turn Turn) (*Reply, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(turn))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := toReply(response)
	s.logger.Info("coach reply generated", "history", len(turn.History), "length", len(reply.Content))
	return reply, nil
}

// StreamReply streams a coach turn via the configured chain.
func (s *Service) StreamReply(ctx context.Context, turn Turn) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, ErrStreamingDisabled
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(turn))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

func (s *Service) buildChainInput(turn Turn) map[string]any {
	return map[string]any{
		"system":  turn.System,
		"history": s.buildHistoryMessages(turn.History),
		"query":   turn.Query,
	}
}

func (s *Service) buildHistoryMessages(messages []coach.Message) []*schema.Message {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case coach.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case coach.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}

// ToSchemaMessages converts relay chat messages. Unknown roles are rejected.
func ToSchemaMessages(messages []ChatMessage) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(messages))
	for i, m := range messages {
		switch coach.Role(m.Role) {
		case coach.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case coach.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case coach.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			return nil, fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	return out, nil
}

// ChatMessage is the wire form of one relay message.
type ChatMessage struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// Collect drains a stream into a single reply.
func Collect(stream *schema.StreamReader[*schema.Message]) (*Reply, error) {
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return &Reply{Role: string(schema.Assistant)}, nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("merge stream chunks: %w", err)
	}
	return toReply(merged), nil
}

func toReply(msg *schema.Message) *Reply {
	reply := &Reply{Role: string(schema.Assistant)}
	if msg == nil {
		return reply
	}
	if msg.Role != "" {
		reply.Role = string(msg.Role)
	}
	reply.Content = msg.Content
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := msg.ResponseMeta.Usage
		reply.Usage = Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return reply
}
