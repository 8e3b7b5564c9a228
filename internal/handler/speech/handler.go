package speech

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/daybook/backend/internal/model/speech"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

// maxUploadBytes 录音文件上限，与转写服务的 25MB 限制一致
const maxUploadBytes = 25 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Enabled() bool
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	logger    *slog.Logger
}

// New 创建语音处理器，speechSvc 为 nil 时只注册降级路由
func New(speechSvc SpeechService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{speechSvc: speechSvc, logger: logger}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Get("/health", h.handleHealth)

		if !h.available() {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "speech service not available")
			}
			speechRouter.Post("/transcribe", unavailable)
			speechRouter.Get("/recorder", unavailable)
			return
		}

		speechRouter.Post("/transcribe", h.handleTranscribe)
		NewWebSocketHandler(h.speechSvc, h.logger).RegisterWebSocketRoutes(speechRouter)
	})
}

func (h *Handler) available() bool {
	return h.speechSvc != nil && h.speechSvc.Enabled()
}

// handleTranscribe 处理 multipart 上传的录音文件（字段名 audio）
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	text, err := h.speechSvc.Transcribe(r.Context(), audio)
	if err != nil {
		h.logger.Error("transcription failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, speechmodel.TranscriptionResponse{Text: text})
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.available() {
		status = "disabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"service": "speech",
	})
}
