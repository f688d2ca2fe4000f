package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
)

type GetJobUseCase struct {
	repo port.JobRepository
}

func NewGetJobUseCase(repo port.JobRepository) *GetJobUseCase {
	return &GetJobUseCase{repo: repo}
}

func (uc *GetJobUseCase) Execute(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return findJob(ctx, uc.repo, id)
}

func findJob(ctx context.Context, repo port.JobRepository, id uuid.UUID) (*entity.Job, error) {
	job, err := repo.FindByID(ctx, id)
	if errors.Is(err, port.ErrJobNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}
