package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"go.uber.org/zap"
)

type CancelJobUseCase struct {
	repo      port.JobRepository
	tracker   *Tracker
	publisher port.StatusPublisher
	logger    *zap.Logger
}

func NewCancelJobUseCase(repo port.JobRepository, tracker *Tracker, publisher port.StatusPublisher, logger *zap.Logger) *CancelJobUseCase {
	return &CancelJobUseCase{repo: repo, tracker: tracker, publisher: publisher, logger: logger}
}

// Execute stops a job. A job running in this process is interrupted and its
// worker records CANCELLED; any other unfinished job is marked CANCELLED here
// and workers skip it.
func (uc *CancelJobUseCase) Execute(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	job, err := findJob(ctx, uc.repo, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("cancel job %s in status %s: %w", id, job.Status, ErrJobFinished)
	}

	log := uc.logger.With(zap.String("job_id", id.String()))
	if uc.tracker.Cancel(id) {
		log.Info("running job signalled to stop")
		return job, nil
	}

	job.MarkCancelled()
	if err := uc.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	data, _ := json.Marshal(entity.NewStatusMessage(job))
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
	log.Info("job cancelled", zap.String("status", string(job.Status)))
	return job, nil
}
