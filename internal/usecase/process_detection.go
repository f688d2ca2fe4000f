package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/humandetect/humandetect-service/internal/infra/metrics"
	"github.com/humandetect/humandetect-service/internal/shim"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RetryableError asks the consumer to requeue the message. FailedAttempt
// drives the consumer's backoff.
type RetryableError struct {
	Attempt     int
	MaxAttempts int
	Reason      entity.ReasonCode
	Message     string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %s: %s", e.Attempt, e.MaxAttempts, e.Reason, e.Message)
}

func (e *RetryableError) FailedAttempt() int {
	return e.Attempt
}

type ProcessDetectionUseCase struct {
	repo      port.JobRepository
	storage   port.ArtifactStorage
	shim      *shim.Shim
	prober    port.VideoProber
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	tracker   *Tracker
	logger    *zap.Logger
	maxRetry  int
}

type ProcessDetectionConfig struct {
	MaxRetries int
}

func NewProcessDetectionUseCase(
	repo port.JobRepository,
	storage port.ArtifactStorage,
	s *shim.Shim,
	prober port.VideoProber,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	tracker *Tracker,
	logger *zap.Logger,
	cfg ProcessDetectionConfig,
) *ProcessDetectionUseCase {
	return &ProcessDetectionUseCase{
		repo:      repo,
		storage:   storage,
		shim:      s,
		prober:    prober,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		tracker:   tracker,
		logger:    logger,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one detection.request message. A nil return acks the
// message; a *RetryableError requeues it.
func (uc *ProcessDetectionUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessDetectionUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.DetectionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.input_key", msg.InputKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("input_key", msg.InputKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.NewJob(msg.InputKey, msg.VideoType, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		job.InputKey = msg.InputKey
		job.NotifyEmail = msg.NotifyEmail
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status.Terminal() && job.Status != entity.JobStatusFailed {
		log.Info("job already finished, skipping", zap.String("status", string(job.Status)))
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, rawMsg, job.Reason, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	runCtx, release := uc.tracker.Start(ctx, job.ID)
	defer release()

	if err := uc.detect(ctx, runCtx, job, rawMsg, log); err != nil {
		return err
	}

	metrics.DetectionDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

// detect runs the job under runCtx, which the tracker cancels on request.
// Bookkeeping uses ctx so a cancelled run can still be recorded.
func (uc *ProcessDetectionUseCase) detect(ctx, runCtx context.Context, job *entity.Job, rawMsg []byte, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")

	input, err := uc.storage.OpenInput(runCtx, job.InputKey)
	if err != nil {
		reason := entity.ReasonInternal
		if ctxErr := runCtx.Err(); ctxErr != nil {
			reason = entity.ReasonOf(ctxErr)
		}
		log.Error("failed to open input", zap.Error(err))
		return uc.handleFailure(ctx, job, rawMsg, reason, "open input: "+err.Error(), log)
	}
	defer input.Close()

	size := job.FileSize
	if size <= 0 {
		size = -1
	}
	video := entity.UploadedVideo{
		Filename: job.OriginalName,
		Type:     job.VideoType,
		Size:     size,
		Body:     input,
	}

	outputKey := OutputKey(job.ID)
	var duration float64

	detStart := time.Now()
	detCtx, spanDet := tracer.Start(runCtx, "detect")
	result, err := uc.shim.Process(detCtx, video, func(a *shim.Artifact) error {
		if d, perr := uc.prober.Duration(ctx, a.File.Name()); perr != nil {
			log.Warn("could not probe output duration", zap.Error(perr))
		} else {
			duration = d
		}

		upStart := time.Now()
		upCtx, spanUp := tracer.Start(ctx, "upload_result")
		defer spanUp.End()
		if err := uc.storage.PutResult(upCtx, outputKey, a.File, a.Size); err != nil {
			return err
		}
		metrics.DetectionDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())
		return nil
	})
	spanDet.End()
	metrics.DetectionDuration.WithLabelValues("detect").Observe(time.Since(detStart).Seconds())
	metrics.DetectionsTotal.WithLabelValues("async", string(result.Outcome)).Inc()

	if err != nil && result.Outcome == entity.OutcomeSucceeded {
		log.Error("result upload failed", zap.Error(err))
		return uc.handleFailure(ctx, job, rawMsg, entity.ReasonInternal, "upload result: "+err.Error(), log)
	}

	switch result.Outcome {
	case entity.OutcomeSucceeded:
		job.MarkCompleted(outputKey, result.OutputSize, duration)
		if done, err := uc.finish(ctx, job); done || err != nil {
			return err
		}
		uc.publishStatus(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
		log.Info("job completed successfully",
			zap.Int64("output_size", result.OutputSize),
			zap.Float64("duration_secs", duration),
			zap.String("output_key", outputKey),
		)
		return nil

	case entity.OutcomeNoOutput:
		job.MarkNoOutput(result.Reason)
		if done, err := uc.finish(ctx, job); done || err != nil {
			return err
		}
		uc.publishStatus(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues("no_output").Inc()
		log.Warn("engine produced no output", zap.String("reason", string(result.Reason)))
		return nil
	}

	return uc.handleFailure(ctx, job, rawMsg, result.Reason, result.Message, log)
}

// finish persists a final status unless the job was cancelled in the store
// while it ran. done reports that the cancellation won.
func (uc *ProcessDetectionUseCase) finish(ctx context.Context, job *entity.Job) (done bool, err error) {
	if current, ferr := uc.repo.FindByID(ctx, job.ID); ferr == nil && current.Status == entity.JobStatusCancelled {
		uc.logger.Info("job cancelled while running, discarding result", zap.String("job_id", job.ID.String()))
		return true, nil
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		return true, fmt.Errorf("update job %s: %w", job.Status, err)
	}
	return false, nil
}

func (uc *ProcessDetectionUseCase) handleFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	reason entity.ReasonCode,
	errMsg string,
	log *zap.Logger,
) error {
	if reason == entity.ReasonCancelled {
		if ctx.Err() != nil {
			// Worker shutdown, not a user cancel: let the broker redeliver.
			return &RetryableError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: reason, Message: "worker shutting down"}
		}
		job.MarkCancelled()
		if done, err := uc.finish(ctx, job); done || err != nil {
			return err
		}
		uc.publishStatus(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues("cancelled").Inc()
		log.Info("job cancelled")
		return nil
	}

	if !reason.Retryable() {
		return uc.handlePermanentFailure(ctx, job, rawMsg, reason, errMsg)
	}
	return uc.handleRetryableFailure(ctx, job, rawMsg, reason, errMsg, log)
}

func (uc *ProcessDetectionUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	reason entity.ReasonCode,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(reason, errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, rawMsg, reason, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &RetryableError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: reason, Message: errMsg}
}

func (uc *ProcessDetectionUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	rawMsg []byte,
	reason entity.ReasonCode,
	errMsg string,
) error {
	job.MarkFailed(reason, errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, string(reason)+": "+errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if job.NotifyEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, job.NotifyEmail, job.ID.String(), job.OriginalName, errMsg)
	}

	return nil
}

func (uc *ProcessDetectionUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	data, _ := json.Marshal(entity.NewStatusMessage(job))
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
