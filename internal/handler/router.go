package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/daybook/backend/internal/handler/coach"
	"github.com/zhouzirui/daybook/backend/internal/handler/journal"
	"github.com/zhouzirui/daybook/backend/internal/handler/relay"
	"github.com/zhouzirui/daybook/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/daybook/backend/internal/middleware"
	aiService "github.com/zhouzirui/daybook/backend/internal/service/ai"
	coachService "github.com/zhouzirui/daybook/backend/internal/service/coach"
	journalService "github.com/zhouzirui/daybook/backend/internal/service/journal"
	speechService "github.com/zhouzirui/daybook/backend/internal/service/speech"
	"github.com/zhouzirui/daybook/backend/pkg/utils"
)

// Deps 路由依赖的服务，AI 与 Speech 可为 nil
type Deps struct {
	Journal      *journalService.Service
	Coach        *coachService.Service
	AI           *aiService.Service
	Speech       *speechService.Service
	RelayLimiter *middlewarePkg.KeyedRateLimiter

	AllowedOrigins []string
	DefaultUserID  string
	Logger         *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	r.Use(middlewarePkg.UserID(deps.DefaultUserID))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"ai":     deps.AI != nil,
			"speech": deps.Speech != nil && deps.Speech.Enabled(),
		})
	})

	// 未配置的服务以 nil 接口传入
	var (
		completer    relay.Completer
		conversation relay.Conversation
		transcriber  relay.Transcriber
		speechSvc    speech.SpeechService
	)
	if deps.AI != nil {
		completer = deps.AI
		conversation = deps.Coach
	}
	if deps.Speech != nil {
		transcriber = deps.Speech
		speechSvc = deps.Speech
	}

	r.Route("/api", func(api chi.Router) {
		journal.New(deps.Journal, logger).RegisterRoutes(api)
		coach.New(deps.Coach, logger).RegisterRoutes(api)
		relay.New(completer, conversation, transcriber, deps.RelayLimiter, logger).RegisterRoutes(api)
		speech.New(speechSvc, logger).RegisterRoutes(api)
	})

	return r
}
