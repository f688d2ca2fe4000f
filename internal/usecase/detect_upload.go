package usecase

import (
	"context"
	"time"

	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/infra/metrics"
	"github.com/humandetect/humandetect-service/internal/shim"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DetectUploadUseCase is the synchronous path: the caller blocks until the
// processed video has been handed to deliver, or detection has failed.
type DetectUploadUseCase struct {
	shim   *shim.Shim
	logger *zap.Logger
}

func NewDetectUploadUseCase(s *shim.Shim, logger *zap.Logger) *DetectUploadUseCase {
	return &DetectUploadUseCase{shim: s, logger: logger}
}

func (uc *DetectUploadUseCase) Execute(ctx context.Context, video entity.UploadedVideo, deliver func(*shim.Artifact) error) (entity.DetectionResult, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "DetectUploadUseCase.Execute",
		trace.WithAttributes(
			attribute.String("video.name", video.Filename),
			attribute.String("video.type", string(video.Type)),
		),
	)
	defer span.End()

	metrics.InFlightRequests.Inc()
	defer metrics.InFlightRequests.Dec()

	start := time.Now()
	result, err := uc.shim.Process(ctx, video, deliver)
	metrics.DetectionDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
	metrics.DetectionsTotal.WithLabelValues("sync", string(result.Outcome)).Inc()
	if video.Size > 0 {
		metrics.UploadBytes.WithLabelValues(string(video.Type)).Add(float64(video.Size))
	}

	span.SetAttributes(
		attribute.String("detection.outcome", string(result.Outcome)),
		attribute.String("detection.reason", string(result.Reason)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if result.Outcome == entity.OutcomeFailed {
		span.SetStatus(codes.Error, result.Message)
	}

	if result.Outcome == entity.OutcomeNoOutput {
		uc.logger.Warn("engine produced no output",
			zap.String("video", video.Filename),
			zap.String("reason", string(result.Reason)),
		)
	}
	return result, err
}
