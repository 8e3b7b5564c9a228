package speech

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/daybook/backend/internal/model/speech"
	"github.com/zhouzirui/daybook/backend/internal/middleware"
	speechsvc "github.com/zhouzirui/daybook/backend/internal/service/speech"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 录音 WebSocket 处理器
type WebSocketHandler struct {
	speechSvc    SpeechService
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	recorderOpts []speechsvc.RecorderOption
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, logger *slog.Logger, opts ...speechsvc.RecorderOption) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		speechSvc: speechSvc,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		recorderOpts: opts,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/recorder", h.handleRecorder)
}

// eventWriter 串行化写操作，计时回调、转写结果与读循环会并发写同一连接
type eventWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

func (w *eventWriter) send(evt speechmodel.RecorderEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteJSON(evt); err != nil {
		w.logger.Debug("write recorder event failed", "type", evt.Type, "error", err)
	}
}

func (w *eventWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (w *eventWriter) sendState(state speechsvc.RecorderState) {
	w.send(speechmodel.RecorderEvent{Type: speechmodel.EventState, State: string(state)})
}

func (w *eventWriter) sendError(message string) {
	w.send(speechmodel.RecorderEvent{Type: speechmodel.EventError, Error: message})
}

// handleRecorder 处理一次录音连接：JSON 文本帧为控制指令，二进制帧为音频分片
func (h *WebSocketHandler) handleRecorder(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("user_id", middleware.UserIDFrom(r.Context()))
	logger.Info("recorder connected")

	ctx, cancel := context.WithCancel(r.Context())
	out := &eventWriter{conn: conn, logger: logger}

	rec := speechsvc.NewRecorder(h.speechSvc, func(seconds int) {
		out.send(speechmodel.RecorderEvent{Type: speechmodel.EventElapsed, Seconds: &seconds})
	}, h.recorderOpts...)

	var pending sync.WaitGroup
	defer func() {
		rec.Close()
		cancel()
		pending.Wait()
		logger.Info("recorder disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, out)

	out.sendState(rec.State())

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("recorder read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msgType {
		case websocket.BinaryMessage:
			if err := rec.Write(data); err != nil {
				out.sendError("audio received while not recording")
			}
		case websocket.TextMessage:
			var msg speechmodel.ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				out.sendError("invalid control message")
				continue
			}
			h.handleControl(ctx, out, rec, &pending, msg.Type)
		}
	}
}

func (h *WebSocketHandler) handleControl(ctx context.Context, out *eventWriter, rec *speechsvc.Recorder, pending *sync.WaitGroup, control speechmodel.ControlType) {
	var err error
	switch control {
	case speechmodel.ControlStart:
		err = rec.Start()
	case speechmodel.ControlPause:
		err = rec.Pause()
	case speechmodel.ControlResume:
		err = rec.Resume()
	case speechmodel.ControlCancel:
		err = rec.Cancel()
	case speechmodel.ControlStop:
		pending.Add(1)
		err = rec.StopAsync(ctx, func(text string, err error) {
			defer pending.Done()
			if err != nil {
				out.logger.Error("recorder transcription failed", "error", err)
				out.sendError(err.Error())
			} else {
				out.send(speechmodel.RecorderEvent{Type: speechmodel.EventTranscript, Text: &text})
			}
			out.sendState(speechsvc.StateIdle)
		})
		if err == nil {
			// 转写完成后由回调推送结果与 idle 状态
			return
		}
		pending.Done()
	default:
		out.sendError("unsupported message type: " + string(control))
		return
	}

	if err != nil {
		out.sendError(err.Error())
		if errors.Is(err, speechsvc.ErrNoAudio) {
			out.sendState(rec.State())
		}
		return
	}
	out.sendState(rec.State())
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, out *eventWriter) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}
