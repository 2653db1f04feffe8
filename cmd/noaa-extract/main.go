package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/godhahn/data-project/internal/api/http"
	"github.com/godhahn/data-project/internal/config"
	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/history"
	"github.com/godhahn/data-project/internal/logger"
	"github.com/godhahn/data-project/internal/metrics"
	"github.com/godhahn/data-project/internal/noaa"
	"github.com/godhahn/data-project/internal/runner"
	"github.com/godhahn/data-project/internal/scheduler"
	"github.com/godhahn/data-project/internal/snapshot"
	"github.com/godhahn/data-project/internal/store"
)

const (
	modeRun      = "run"
	modeSchedule = "schedule"
)

func main() {
	mode := flag.String("mode", modeRun, "run once (run) or on a schedule with the status API (schedule)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer svc.close()

	switch {
	case os.Getenv("AWS_LAMBDA_RUNTIME_API") != "":
		log.Info("starting lambda handler")
		lambda.StartWithOptions(newLambdaHandler(svc.runner, log), lambda.WithEnableSIGTERM(stop))
	case *mode == modeSchedule:
		if err := serve(ctx, cfg, svc, log); err != nil {
			log.Error("server stopped", "error", err)
		}
	case *mode == modeRun:
		sum, err := svc.runner.Run(ctx)
		if err != nil {
			log.Error("run not started", "error", err)
			return
		}
		if mem, ok := svc.objects.(*store.MemoryStore); ok {
			log.Info("dry run finished", "keys", mem.Keys())
		}
		log.Info("Process completed", "status", sum.Status)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

type service struct {
	objects snapshot.ObjectStore
	history history.Repository
	metrics *metrics.Metrics
	runner  *runner.Runner
	closers []func() error
}

func (s *service) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("error during shutdown", "error", err)
		}
	}
}

// build creates the long-lived collaborators of a run.
func build(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*service, error) {
	svc := &service{metrics: metrics.New()}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc.objects = objects

	if cfg.HistoryDSN != "" {
		repo, err := history.OpenPostgres(ctx, cfg.HistoryDSN, log)
		if err != nil {
			return nil, err
		}
		svc.history = repo
		svc.closers = append(svc.closers, repo.Close)
	} else {
		svc.history = history.NewMemoryRepository(cfg.HistoryMaxRuns, cfg.HistoryMaxAge)
	}

	// Shared HTTP client for outbound CDO calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	opts := cfg.NoaaOptions()
	opts.Observer = svc.metrics
	opts.Logger = log
	client := noaa.NewClient(httpClient, opts)

	writer := snapshot.NewWriter(objects, cfg.KeyPrefix, log)
	job := extract.NewJob(client, writer, cfg.ExtractParams(), log)

	svc.runner = runner.New(job, runner.Options{
		History:        svc.history,
		Recorder:       svc.metrics,
		PushgatewayURL: cfg.PushgatewayURL,
		Logger:         log,
	})
	return svc, nil
}

func newObjectStore(ctx context.Context, cfg *config.AppConfig) (snapshot.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return store.NewFileStore(cfg.OutputDir), nil
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		s3store, err := store.NewS3Store(ctx, store.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3PathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("writing snapshots to s3", "bucket", s3store.Bucket(), "prefix", cfg.KeyPrefix)
		return s3store, nil
	}
}

// serve runs the scheduler and the status API until ctx is done.
func serve(ctx context.Context, cfg *config.AppConfig, svc *service, log *slog.Logger) error {
	sched := scheduler.New(svc.runner, cfg.Schedule, cfg.ScheduleInterval, log)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "noaa-extract",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Context: ctx,
		History: svc.history,
		Trigger: svc.runner,
		Metrics: svc.metrics.Handler(),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Warn("fiber server stopped", "error", err)
		}
	}()
	log.Info("status API listening", "port", cfg.Port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := app.ShutdownWithContext(shutdownCtx)
	svc.runner.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
