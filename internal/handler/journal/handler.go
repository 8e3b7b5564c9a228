package journal

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/daybook/backend/internal/model/journal"
	journalService "github.com/zhouzirui/daybook/backend/internal/service/journal"
	"github.com/zhouzirui/daybook/backend/internal/validation"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

// Handler 日记模板、条目与个人设置的HTTP处理器
type Handler struct {
	svc      *journalService.Service
	validate *validation.Validator
	logger   *slog.Logger
}

// New 创建日记处理器
func New(svc *journalService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:      svc,
		validate: validation.New(),
		logger:   logger.With("component", "journal"),
	}
}

// RegisterRoutes 注册日记相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)

	r.Route("/templates", func(tr chi.Router) {
		tr.Get("/", h.handleListTemplates)
		tr.Post("/", h.handleAddTemplate)
		tr.Put("/{id}", h.handleUpdateTemplate)
		tr.Delete("/{id}", h.handleDeleteTemplate)
		tr.Put("/{id}/order", h.handleReorderQuestions)
	})

	r.Route("/categories", func(cr chi.Router) {
		cr.Get("/", h.handleListCategories)
		cr.Post("/", h.handleAddCategory)
		cr.Delete("/{id}", h.handleDeleteCategory)
	})

	r.Route("/tags", func(tr chi.Router) {
		tr.Get("/", h.handleListTags)
		tr.Post("/", h.handleAddTag)
		tr.Delete("/{id}", h.handleDeleteTag)
	})

	r.Route("/entries", func(er chi.Router) {
		er.Get("/", h.handleListEntries)
		er.Post("/", h.handleCreateEntry)
		er.Post("/delete", h.handleDeleteEntries)
		er.Get("/calendar", h.handleCalendar)
		er.Get("/{id}", h.handleGetEntry)
		er.Put("/{id}", h.handleUpdateEntry)
		er.Delete("/{id}", h.handleDeleteEntry)
	})

	r.Get("/profile", h.handleGetProfile)
	r.Patch("/profile", h.handleUpdateProfile)
	r.Patch("/profile/preferences", h.handleUpdatePreferences)
	r.Post("/preferences/dark-mode", h.handleToggleDarkMode)
}

// decodeAndValidate 解析请求体并执行结构体校验，失败时已写出响应
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

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot().Templates)
}

// handleAddTemplate 新建模板，问题 id 与顺序由服务端生成
func (h *Handler) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl journal.Template
	if !h.decodeAndValidate(w, r, &tmpl) {
		return
	}

	id := h.svc.AddTemplate(r.Context(), tmpl)
	created, _ := h.svc.Snapshot().Template(id)
	h.logger.Info("template created", "template_id", id, "questions", len(created.Questions))
	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl journal.Template
	if !h.decodeAndValidate(w, r, &tmpl) {
		return
	}
	tmpl.ID = chi.URLParam(r, "id")

	if err := h.svc.UpdateTemplate(r.Context(), tmpl); err != nil {
		h.respondServiceError(w, err)
		return
	}
	updated, _ := h.svc.Snapshot().Template(tmpl.ID)
	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteTemplate(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleReorderQuestions 按给定的问题 id 顺序重新编号
func (h *Handler) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		QuestionIDs []string `json:"questionIds" validate:"required"`
	}
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	tmpl, err := h.svc.ReorderQuestions(r.Context(), chi.URLParam(r, "id"), payload.QuestionIDs)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, tmpl)
}

// handleListCategories 支持 ?type=morning|evening 过滤
func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot().Categories)
		return
	}

	typ, err := journal.ParseTemplateType(raw)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.CategoriesFor(r.Context(), typ))
}

func (h *Handler) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var cat journal.Category
	if !h.decodeAndValidate(w, r, &cat) {
		return
	}
	cat.ID = h.svc.AddCategory(r.Context(), cat)
	utils.RespondJSON(w, http.StatusCreated, cat)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteCategory(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Snapshot().Tags)
}

func (h *Handler) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var tag journal.Tag
	if !h.decodeAndValidate(w, r, &tag) {
		return
	}
	utils.RespondJSON(w, http.StatusCreated, h.svc.AddTag(r.Context(), tag))
}

func (h *Handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteTag(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type entryPayload struct {
	Answers journal.Answers       `json:"answers"`
	Ratings []journal.RatingInput `json:"ratings" validate:"dive"`
}

type createEntryPayload struct {
	TemplateID string                `json:"templateId" validate:"required"`
	Answers    journal.Answers       `json:"answers"`
	Ratings    []journal.RatingInput `json:"ratings" validate:"dive"`
}

// handleListEntries 时间线查询，支持 from/to（RFC3339 或 YYYY-MM-DD）、type、limit
func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter journalService.EntryFilter

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	if raw := q.Get("type"); raw != "" {
		if filter.Type, err = journal.ParseTemplateType(raw); err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	utils.RespondJSON(w, http.StatusOK, h.svc.ListEntries(r.Context(), filter))
}

// handleCreateEntry 保存一条日记。模板存在时校验答案对应的问题 id
func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var payload createEntryPayload
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	err := h.svc.ValidateAnswers(r.Context(), payload.TemplateID, payload.Answers)
	if err != nil && !errors.Is(err, journalService.ErrTemplateNotFound) {
		h.respondServiceError(w, err)
		return
	}

	entry := h.svc.CreateEntry(r.Context(), payload.TemplateID, payload.Answers, payload.Ratings)
	h.logger.Info("entry created", "entry_id", entry.ID, "template_id", entry.TemplateID, "ratings", len(entry.Ratings))
	utils.RespondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

// handleUpdateEntry 整体替换答案并重新生成评分
func (h *Handler) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var payload entryPayload
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}

	entryID := chi.URLParam(r, "id")
	current, err := h.svc.GetEntry(r.Context(), entryID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	err = h.svc.ValidateAnswers(r.Context(), current.TemplateID, payload.Answers)
	if err != nil && !errors.Is(err, journalService.ErrTemplateNotFound) {
		h.respondServiceError(w, err)
		return
	}

	entry, ok := h.svc.UpdateEntry(r.Context(), entryID, payload.Answers, payload.Ratings)
	if !ok {
		h.respondServiceError(w, journalService.ErrEntryNotFound)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteEntry(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteEntries 批量删除，不存在的 id 被忽略
func (h *Handler) handleDeleteEntries(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IDs []string `json:"ids" validate:"required"`
	}
	if !h.decodeAndValidate(w, r, &payload) {
		return
	}
	h.svc.DeleteEntries(r.Context(), payload.IDs)
	w.WriteHeader(http.StatusNoContent)
}

// handleCalendar 返回 month=YYYY-MM 内按天分组的条目 id，tz 可选（IANA 时区名）
func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := time.Parse("2006-01", q.Get("month"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "month must be formatted as YYYY-MM")
		return
	}

	loc := time.UTC
	if tz := q.Get("tz"); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "unknown time zone "+tz)
			return
		}
	}

	utils.RespondJSON(w, http.StatusOK, h.svc.EntriesByDay(r.Context(), month, loc))
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Profile(r.Context()))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update journal.ProfileUpdate
	if !h.decodeAndValidate(w, r, &update) {
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.UpdateProfile(r.Context(), update))
}

func (h *Handler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var update journal.PreferencesUpdate
	if !h.decodeAndValidate(w, r, &update) {
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.UpdatePreferences(r.Context(), update))
}

func (h *Handler) handleToggleDarkMode(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"darkMode": h.svc.ToggleDarkMode(r.Context())})
}

// respondServiceError 将服务层错误映射为状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, journalService.ErrEntryNotFound),
		errors.Is(err, journalService.ErrTemplateNotFound),
		errors.Is(err, journalService.ErrTagNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, journalService.ErrUnknownQuestion):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("journal request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
