package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/humandetect/humandetect-service/internal/app"
	"github.com/humandetect/humandetect-service/internal/infra/config"
	"github.com/humandetect/humandetect-service/internal/infra/metrics"
	"github.com/humandetect/humandetect-service/internal/infra/tracing"
	"github.com/humandetect/humandetect-service/internal/usecase"
	"github.com/humandetect/humandetect-service/pkg/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting humandetect-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "humandetect-worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	storage, err := app.NewStorage(ctx, cfg)
	fatalOnErr(err, "create storage")

	repo, closeRepo, err := app.NewJobRepository(ctx, cfg, log)
	fatalOnErr(err, "create job store")
	defer closeRepo()

	detectShim, err := app.NewShim(cfg, log)
	fatalOnErr(err, "create shim")
	detectShim.StartJanitor(ctx, cfg.JanitorInterval, cfg.TempMaxAge)

	msg, err := app.NewMessaging(cfg)
	fatalOnErr(err, "connect messaging")
	defer msg.Close()

	processor := app.NewProcessor(cfg, repo, storage, detectShim, msg, usecase.NewTracker(), log)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, msg.Ready, log)

	consumer, err := app.NewConsumer(cfg, processor.Execute, log)
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("humandetect-worker started, consuming detection requests")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("humandetect-worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
