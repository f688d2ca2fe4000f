package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/humandetect/humandetect-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SubmitJobUseCase struct {
	repo        port.JobRepository
	storage     port.ArtifactStorage
	publisher   port.RequestPublisher
	logger      *zap.Logger
	maxAttempts int
}

func NewSubmitJobUseCase(
	repo port.JobRepository,
	storage port.ArtifactStorage,
	publisher port.RequestPublisher,
	logger *zap.Logger,
	maxAttempts int,
) *SubmitJobUseCase {
	return &SubmitJobUseCase{
		repo:        repo,
		storage:     storage,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Execute stores the upload, records a PENDING job and queues it for a worker.
func (uc *SubmitJobUseCase) Execute(ctx context.Context, video entity.UploadedVideo, notifyEmail string) (*entity.Job, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "SubmitJobUseCase.Execute")
	defer span.End()

	if !video.Type.Valid() {
		return nil, fmt.Errorf("submit %q: %w", video.Filename, entity.ErrUnsupportedType)
	}

	job := entity.NewJob(video.Filename, video.Type, video.Size, uc.maxAttempts)
	job.InputKey = InputKey(job.ID, video.Type)
	job.NotifyEmail = notifyEmail
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	log := uc.logger.With(zap.String("job_id", job.ID.String()))

	body := &countingReader{r: video.Body}
	if err := uc.storage.PutInput(ctx, job.InputKey, body, video.Size, video.Type.ContentType()); err != nil {
		return nil, fmt.Errorf("store input: %w", err)
	}
	job.FileSize = body.n
	metrics.UploadBytes.WithLabelValues(string(video.Type)).Add(float64(body.n))

	if err := uc.repo.Create(ctx, job); err != nil {
		if derr := uc.storage.DeleteInput(ctx, job.InputKey); derr != nil {
			log.Warn("could not remove input of unrecorded job", zap.String("input_key", job.InputKey), zap.Error(derr))
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	data, err := json.Marshal(entity.DetectionRequestMessage{
		JobID:       job.ID,
		InputKey:    job.InputKey,
		VideoType:   job.VideoType,
		FileSize:    job.FileSize,
		NotifyEmail: job.NotifyEmail,
	})
	if err == nil {
		err = uc.publisher.PublishRequest(ctx, data)
	}
	if err != nil {
		job.MarkFailed(entity.ReasonInternal, "queue job: "+err.Error())
		if uerr := uc.repo.Update(ctx, job); uerr != nil {
			log.Error("failed to record queueing failure", zap.Error(uerr))
		}
		return job, fmt.Errorf("queue job: %w", err)
	}

	log.Info("job submitted",
		zap.String("original_name", job.OriginalName),
		zap.Int64("file_size", job.FileSize),
	)
	return job, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
