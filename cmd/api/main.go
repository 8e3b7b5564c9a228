package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/daybook/backend/internal/config"
	"github.com/zhouzirui/daybook/backend/internal/handler"
	"github.com/zhouzirui/daybook/backend/internal/logger"
	"github.com/zhouzirui/daybook/backend/internal/middleware"
	"github.com/zhouzirui/daybook/backend/internal/service/ai"
	"github.com/zhouzirui/daybook/backend/internal/service/coach"
	"github.com/zhouzirui/daybook/backend/internal/service/journal"
	"github.com/zhouzirui/daybook/backend/internal/service/speech"
	"github.com/zhouzirui/daybook/backend/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.Init(cfg.Log)

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := sqlite.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	seed, err := journal.LoadSeedFile(cfg.Storage.SeedFile)
	if err != nil {
		return err
	}
	journalService := journal.NewService(seed)

	// Initialize AI service
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("failed to initialize AI service, continuing without coach replies", "error", err)
			aiService = nil
		} else {
			logger.Info("AI service initialized", "model", cfg.AI.Model, "stream", cfg.AI.StreamResponse)
		}
	} else {
		logger.Info("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	var responder coach.Responder
	if aiService != nil {
		responder = aiService
	}
	coachService := coach.NewService(store, responder, journalService, logger)

	speechService := speech.NewService(cfg.Speech, logger)
	if !speechService.Enabled() {
		logger.Info("语音服务凭证未配置，转写功能不可用")
	}

	var limiter *middleware.KeyedRateLimiter
	if cfg.Server.RelayRate > 0 {
		limiter = middleware.NewKeyedRateLimiter(cfg.Server.RelayRate, cfg.Server.RelayBurst)
		defer limiter.Stop()
	}

	router := handler.NewRouter(handler.Deps{
		Journal:        journalService,
		Coach:          coachService,
		AI:             aiService,
		Speech:         speechService,
		RelayLimiter:   limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultUserID:  cfg.DefaultUserID,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("daybook backend listening", "addr", cfg.Server.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
