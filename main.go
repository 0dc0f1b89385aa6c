package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/api"
	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/config"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
	"github.com/andiegogiap/AI-WORKFLOW/structurer"
)

const (
	loadTimeout     = 30 * time.Second
	shutdownTimeout = 15 * time.Second
	flushTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	var rc *redis.Client
	if cfg.RedisConn != "" {
		rc = redis.NewClient(storage.ParseRedisOptions(cfg.RedisConn))
	}

	opts := cfg.StorageOptions()
	opts.Redis = rc
	store, err := storage.New(opts)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	persist := board.NewPersister(store, logger, cfg.Persist)
	boards := board.NewBoardStore(persist, logger)
	notes := board.NewNoteStore(persist, logger)

	loadCtx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	if err := boards.Load(loadCtx); err != nil {
		logger.WithError(err).Warn("load board; starting empty")
	}
	if err := notes.Load(loadCtx); err != nil {
		logger.WithError(err).Warn("load notes; starting empty")
	}
	cancel()

	gemini, err := structurer.NewGeminiClient(
		structurer.WithAPIKey(cfg.GeminiAPIKey),
		structurer.WithModel(cfg.GeminiModel),
		structurer.WithBaseURL(cfg.GeminiBaseURL),
	)
	if err != nil {
		log.Fatalf("gemini: %v", err)
	}
	st := structurer.New(gemini)
	session := board.NewSession(boards, st, board.WithUndoWindow(cfg.UndoWindow))

	auth, err := api.NewAuthenticator(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	var deduper api.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(middleware.BodyLimit("256K"))
	e.Use(api.GzipRequestMiddleware(256 * 1024))

	api.Register(e, api.Services{
		Store:      store,
		Boards:     boards,
		Notes:      notes,
		Session:    session,
		Structurer: st,
	}, auth, deduper, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	flushPending(persist, logger)
	persist.Close()
	if err := storage.Close(store); err != nil {
		logger.WithError(err).Warn("close store")
	}
	if rc != nil {
		_ = rc.Close()
	}
}

// flushPending waits for queued writes. Open streams can hold Shutdown until
// its deadline, so flushing gets its own budget.
func flushPending(persist *board.Persister, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := persist.Flush(ctx); err != nil {
		logger.WithError(err).Warn("flush pending writes")
	}
}
