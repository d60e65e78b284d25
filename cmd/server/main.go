package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/examflow/examflow-backend/internal/bus"
	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/database"
	"github.com/examflow/examflow-backend/internal/handler"
	"github.com/examflow/examflow-backend/internal/logger"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/examflow/examflow-backend/internal/router"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/examflow/examflow-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamFlow Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	outboxRepo := repository.NewOutboxRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool, outboxRepo)
	scoreRepo := repository.NewScoreRepository(pool, ledgerRepo, outboxRepo)
	examRepo := repository.NewExamRepository(pool)
	leaderboardRepo := repository.NewLeaderboardRepository(rdb, cfg.LeaderboardTieEarliestFirst)

	// ─── Initialize Services ──────────────────────────────────────────
	eventBus := bus.New(rdb)
	sessionService := service.NewSessionService(sessionRepo, examRepo, scoreRepo, log)
	scoringService := service.NewScoringService(examRepo, examRepo, ledgerRepo, scoreRepo, service.GradePolicy{
		PassThreshold:        cfg.DefaultPassThreshold,
		CountUnansweredInMax: cfg.ScoreUnansweredInMax,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:     handler.NewSessionHandler(sessionService),
		Leaderboard: handler.NewLeaderboardHandler(leaderboardRepo),
		WS:          handler.NewWSHandler(eventBus, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	publisher := worker.NewOutboxPublisher(outboxRepo, eventBus, cfg.OutboxPollInterval, cfg.OutboxBatchSize, log)
	scoringWorker := worker.NewScoringWorker(eventBus, scoringService, log)
	rankingWorker := worker.NewRankingWorker(eventBus, ledgerRepo, leaderboardRepo, log)
	sweepWorker := worker.NewSweepWorker(sessionRepo, sessionService, cfg.SweepInterval, cfg.SweepGrace, log)

	go publisher.Start(workerCtx)
	go scoringWorker.Start(workerCtx)
	go rankingWorker.Start(workerCtx)
	go sweepWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	// Stop accepting requests first, then stop the workers so in-flight
	// completes still get their events published.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	workerCancel()

	log.Info().Msg("Shutdown complete")
}
