package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/daybook/backend/internal/middleware"
	speechmodel "github.com/zhouzirui/daybook/backend/internal/model/speech"
	"github.com/zhouzirui/daybook/backend/internal/service/ai"
	"github.com/zhouzirui/daybook/backend/internal/validation"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

var errChatUnavailable = errors.New("chat model not configured")

// Completer 直接把消息列表交给模型
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []*schema.Message) (*ai.Reply, error)
}

// Conversation 按会话上下文生成回复，不落库
type Conversation interface {
	Converse(ctx context.Context, userID, sessionID, content string) (*ai.Reply, error)
}

// Transcriber 转写与 key 校验
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	ValidateKey(ctx context.Context, key string) (bool, error)
}

// Handler relay 端点，所有失败统一返回 500 {"error": msg}
type Handler struct {
	completer Completer
	coach     Conversation
	speech    Transcriber
	limiter   *middleware.KeyedRateLimiter
	validate  *validation.Validator
	logger    *slog.Logger
}

// New 创建 relay 处理器，completer/coach/speech 任一为 nil 时对应端点返回错误
func New(completer Completer, coach Conversation, speech Transcriber, limiter *middleware.KeyedRateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		completer: completer,
		coach:     coach,
		speech:    speech,
		limiter:   limiter,
		validate:  validation.New(),
		logger:    logger.With("component", "relay"),
	}
}

// RegisterRoutes 注册 relay 路由，按客户端 IP 限流
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/relay", func(rr chi.Router) {
		rr.Use(middleware.RateLimit(h.limiter, h.logger))
		rr.Post("/ai-chat", h.handleAIChat)
		rr.Post("/transcribe-audio", h.handleTranscribe)
		rr.Post("/test-openai-key", h.handleTestKey)
	})
}

type aiChatRequest struct {
	Messages     []ai.ChatMessage `json:"messages" validate:"omitempty,dive"`
	SystemPrompt string           `json:"systemPrompt"`

	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type aiChatResponse struct {
	Message ai.Reply `json:"message"`
	Usage   ai.Usage `json:"usage"`
}

type sessionChatResponse struct {
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

// handleAIChat 支持两种请求体：{messages, systemPrompt} 与 {sessionId, message}
func (h *Handler) handleAIChat(w http.ResponseWriter, r *http.Request) {
	var req aiChatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}

	if req.SessionID != "" || req.Message != "" {
		h.sessionChat(w, r, req)
		return
	}

	if req.Messages == nil {
		h.fail(w, errors.New("messages array is required"))
		return
	}
	if err := h.validate.Validate(req); err != nil {
		h.fail(w, err)
		return
	}
	if h.completer == nil {
		h.fail(w, errChatUnavailable)
		return
	}

	messages, err := ai.ToSchemaMessages(req.Messages)
	if err != nil {
		h.fail(w, err)
		return
	}

	reply, err := h.completer.Complete(r.Context(), req.SystemPrompt, messages)
	if err != nil {
		h.fail(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, aiChatResponse{Message: *reply, Usage: reply.Usage})
}

func (h *Handler) sessionChat(w http.ResponseWriter, r *http.Request, req aiChatRequest) {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		h.fail(w, errors.New("session id and message are required"))
		return
	}
	if h.coach == nil {
		h.fail(w, errChatUnavailable)
		return
	}

	userID := middleware.UserIDFrom(r.Context())
	reply, err := h.coach.Converse(r.Context(), userID, req.SessionID, req.Message)
	if err != nil {
		h.fail(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionChatResponse{
		Content: reply.Content,
		Tokens:  reply.Usage.TotalTokens,
	})
}

// handleTranscribe 解码 base64 音频后转发给转写服务
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req speechmodel.TranscribeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Audio == "" {
		h.fail(w, errors.New("no audio data provided"))
		return
	}
	if h.speech == nil {
		h.fail(w, errors.New("speech api key not configured"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		h.fail(w, errors.New("audio must be base64 encoded"))
		return
	}

	text, err := h.speech.Transcribe(r.Context(), audio)
	if err != nil {
		h.fail(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, speechmodel.TranscriptionResponse{Text: text})
}

// handleTestKey 校验用户提供的 key，缺失时返回 200 {isValid:false}
func (h *Handler) handleTestKey(w http.ResponseWriter, r *http.Request) {
	var req speechmodel.KeyCheckRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("key check request invalid", "error", err)
		utils.RespondJSON(w, http.StatusInternalServerError, speechmodel.KeyCheckResponse{Message: err.Error()})
		return
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		utils.RespondJSON(w, http.StatusOK, speechmodel.KeyCheckResponse{Message: "No API key provided"})
		return
	}
	if h.speech == nil {
		utils.RespondJSON(w, http.StatusInternalServerError, speechmodel.KeyCheckResponse{Message: "speech service not configured"})
		return
	}

	valid, err := h.speech.ValidateKey(r.Context(), key)
	if err != nil || !valid {
		if err != nil {
			h.logger.Warn("key check failed", "error", err)
		}
		utils.RespondJSON(w, http.StatusOK, speechmodel.KeyCheckResponse{Message: "Invalid API key"})
		return
	}

	utils.RespondJSON(w, http.StatusOK, speechmodel.KeyCheckResponse{IsValid: true, Message: "API key is valid"})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("relay request failed", "error", err)
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
