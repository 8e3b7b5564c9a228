package coach

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/daybook/backend/internal/middleware"
	"github.com/zhouzirui/daybook/backend/internal/model/coach"
	coachService "github.com/zhouzirui/daybook/backend/internal/service/coach"
	"github.com/zhouzirui/daybook/backend/internal/validation"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

// Handler AI 教练的HTTP处理器
type Handler struct {
	svc      *coachService.Service
	validate *validation.Validator
	logger   *slog.Logger
}

// New 创建教练处理器
func New(svc *coachService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:      svc,
		validate: validation.New(),
		logger:   logger.With("component", "coach"),
	}
}

// RegisterRoutes 注册教练相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/coach", func(cr chi.Router) {
		cr.Get("/life-areas", h.handleListLifeAreas)
		cr.Post("/life-areas", h.handleCreateLifeArea)
		cr.Patch("/life-areas/{id}", h.handleUpdateLifeArea)
		cr.Delete("/life-areas/{id}", h.handleDeleteLifeArea)

		cr.Get("/prompts", h.handleListPrompts)
		cr.Post("/prompts", h.handleCreatePrompt)
		cr.Get("/prompts/active", h.handleActivePrompt)

		cr.Get("/sessions", h.handleListSessions)
		cr.Post("/sessions", h.handleCreateSession)
		cr.Get("/sessions/{id}", h.handleGetSession)
		cr.Patch("/sessions/{id}", h.handleUpdateSession)
		cr.Post("/sessions/{id}/tags/{tagID}", h.handleTagSession)
		cr.Delete("/sessions/{id}/tags/{tagID}", h.handleUntagSession)
		cr.Get("/sessions/{id}/messages", h.handleListMessages)
		cr.Post("/sessions/{id}/messages", h.handleSendMessage)
		cr.Get("/sessions/{id}/stream", h.handleStream)
	})
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Validate(dst); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			utils.RespondFieldErrors(w, verr.Message, verr.Fields)
			return false
		}
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) handleListLifeAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.svc.ListLifeAreas(r.Context(), middleware.UserIDFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, areas)
}

func (h *Handler) handleCreateLifeArea(w http.ResponseWriter, r *http.Request) {
	var in coach.LifeAreaInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}
	area, err := h.svc.CreateLifeArea(r.Context(), middleware.UserIDFrom(r.Context()), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, area)
}

func (h *Handler) handleUpdateLifeArea(w http.ResponseWriter, r *http.Request) {
	var u coach.LifeAreaUpdate
	if !h.decodeAndValidate(w, r, &u) {
		return
	}
	area, err := h.svc.UpdateLifeArea(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"), u)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, area)
}

func (h *Handler) handleDeleteLifeArea(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLifeArea(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.svc.ListPrompts(r.Context(), middleware.UserIDFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, prompts)
}

func (h *Handler) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var in coach.PromptInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}
	prompt, err := h.svc.CreatePrompt(r.Context(), middleware.UserIDFrom(r.Context()), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, prompt)
}

// handleActivePrompt 返回 ?lifeAreaId= 对应的生效提示词，没有时回退到全局提示词
func (h *Handler) handleActivePrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.svc.ActivePromptFor(r.Context(), r.URL.Query().Get("lifeAreaId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, prompt)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context(), middleware.UserIDFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in coach.NewSession
	if !h.decodeAndValidate(w, r, &in) {
		return
	}
	sess, err := h.svc.CreateSession(r.Context(), middleware.UserIDFrom(r.Context()), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// handleUpdateSession 修改激活状态、摘要或结束会话
func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var u coach.SessionUpdate
	if !h.decodeAndValidate(w, r, &u) {
		return
	}
	sess, err := h.svc.UpdateSession(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"), u)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleTagSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.TagSession(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "tagID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleUntagSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.UntagSession(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "tagID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListMessages(r.Context(), middleware.UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// handleSendMessage 保存用户消息并同步获取教练回复。
// 教练调用失败时用户消息已落库，返回 502 并附带该消息。
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	sessionID := chi.URLParam(r, "id")
	exchange, err := h.svc.SendMessage(r.Context(), middleware.UserIDFrom(r.Context()), sessionID, req.Content)
	if err != nil {
		if exchange.UserMessage.ID != "" {
			h.logger.Error("coach reply failed", "session_id", sessionID, "error", err)
			utils.RespondJSON(w, http.StatusBadGateway, map[string]any{
				"error":       "coach reply failed",
				"userMessage": exchange.UserMessage,
			})
			return
		}
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, exchange)
}

// respondServiceError 将服务层错误映射为状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coachService.ErrSessionNotFound),
		errors.Is(err, coachService.ErrLifeAreaNotFound),
		errors.Is(err, coachService.ErrPromptNotFound),
		errors.Is(err, coachService.ErrTagNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coachService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coachService.ErrAIUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("coach request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
