package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/database"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/queue"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/judge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, js, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}
	if js == nil {
		logger.Warn().Msg("nats unavailable, submissions will be judged fire-and-forget")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	resultRepo := repository.NewSubmissionResultRepository(db)
	listRepo := repository.NewQuestionListRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	judges := judge.NewRegistry()
	judges.Register(models.JudgeKindSandbox, judge.NewSandboxClient(judge.SandboxConfig{
		BaseURL:   cfg.SandboxURL,
		AuthToken: cfg.SandboxToken,
	}, logger))
	if cfg.ContestURL != "" {
		judges.Register(models.JudgeKindContest, judge.NewContestClient(judge.ContestConfig{
			BaseURL: cfg.ContestURL,
			APIKey:  cfg.ContestToken,
		}, logger))
	}

	gradeService := service.NewGradeService(listRepo, submissionRepo, gradeRepo, logger)
	observer := service.NewRedisProgressObserver(redisClient, logger)
	processor := service.NewProcessor(
		submissionRepo, questionRepo, resultRepo, listRepo,
		gradeService, judges, observer, logger,
		service.ProcessorConfig{
			PollMaxAttempts: cfg.PollMaxAttempts,
			PollInterval:    cfg.PollInterval,
		},
	)

	queueCfg := queue.Config{
		Concurrency:    int64(cfg.WorkerConcurrency),
		RateLimit:      cfg.WorkerRateLimit,
		RateWindow:     cfg.WorkerRateWindow,
		MaxAttempts:    cfg.WorkerMaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}
	guard := queue.NewActiveGuard(redisClient, 0, logger)
	dispatcher := queue.NewDispatcher(js, guard, submissionRepo, processor.Process, logger, queueCfg)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var worker *queue.Worker
	if js != nil {
		worker = queue.NewWorker(js, guard, submissionRepo, processor.Process, logger, queueCfg)
		if err := worker.Start(workerCtx); err != nil {
			log.Fatalf("failed to start queue worker: %v", err)
		}
	}

	submissionService := service.NewSubmissionService(submissionRepo, questionRepo, dispatcher, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, validate, logger)
	gradeHandler := handler.NewGradeHandler(gradeService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, logger)
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		GradeHandler:      gradeHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, worker, dispatcher, stopWorker, cfg, logger)
}

// waitForShutdown drains in-flight jobs up to a hard deadline before exiting.
func waitForShutdown(app *fiber.App, worker *queue.Worker, dispatcher *queue.Dispatcher, stopWorker context.CancelFunc, cfg config.Config, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	stopWorker()
	if worker != nil {
		if err := worker.Drain(ctx); err != nil {
			logger.Warn().Err(err).Msg("worker drain deadline exceeded, forcing exit")
		}
	}
	if err := dispatcher.Drain(ctx); err != nil {
		logger.Warn().Err(err).Msg("dispatcher drain deadline exceeded, forcing exit")
	}

	logger.Info().Msg("server stopped")
}
