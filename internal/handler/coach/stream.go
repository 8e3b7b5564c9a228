package coach

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/daybook/backend/internal/middleware"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event              string `json:"event"`
	Content            string `json:"content,omitempty"`
	SessionID          string `json:"sessionId,omitempty"`
	UserMessageID      string `json:"userMessageId,omitempty"`
	AssistantMessageID string `json:"assistantMessageId,omitempty"`
	Finished           bool   `json:"finished,omitempty"`
	Error              string `json:"error,omitempty"`
}

// handleStream streams a coach reply as Server-Sent Events. Failures before
// the stream opens are plain JSON errors; later ones are sent as an error event.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	userID := middleware.UserIDFrom(r.Context())

	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if _, err := h.svc.GetSession(r.Context(), userID, sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	exchange, err := h.svc.StreamMessage(r.Context(), userID, sessionID, message, func(delta string) {
		if delta == "" {
			return
		}
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   delta,
		})
	})
	if err != nil {
		h.logger.Error("coach stream failed", "session_id", sessionID, "error", err)
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:         "error",
			SessionID:     sessionID,
			UserMessageID: exchange.UserMessage.ID,
			Error:         err.Error(),
		})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:              "end",
		SessionID:          sessionID,
		UserMessageID:      exchange.UserMessage.ID,
		AssistantMessageID: exchange.AssistantMessage.ID,
		Finished:           true,
	})
	h.logger.Info("stream completed", "session_id", sessionID)
}
