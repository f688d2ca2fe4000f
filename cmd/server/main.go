package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/humandetect/humandetect-service/internal/api"
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
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting humandetect-server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "humandetect-server")
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

	tracker := usecase.NewTracker()

	handler := api.NewHandler(api.HandlerDeps{
		Detect:       usecase.NewDetectUploadUseCase(detectShim, log),
		Submit:       usecase.NewSubmitJobUseCase(repo, storage, msg.Requests, log, cfg.MaxRetries),
		Get:          usecase.NewGetJobUseCase(repo),
		Cancel:       usecase.NewCancelJobUseCase(repo, tracker, msg.Status, log),
		Results:      storage,
		PollInterval: cfg.SSEPollInterval,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewRouter(handler, api.RouterConfig{AllowedOrigins: cfg.AllowedOrigins, MaxUploadBytes: cfg.MaxUploadBytes()}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, msg.Ready, log)

	var wg sync.WaitGroup
	if cfg.WorkerEnabled {
		processor := app.NewProcessor(cfg, repo, storage, detectShim, msg, tracker, log)
		consumer, err := app.NewConsumer(cfg, processor.Execute, log)
		fatalOnErr(err, "create consumer")
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				log.Error("consumer error", zap.Error(err))
			}
		}()
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)

	wg.Wait()
	log.Info("humandetect-server stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
