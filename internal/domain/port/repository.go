package port

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepository implementations return an error wrapping ErrJobNotFound for unknown IDs.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Update(ctx context.Context, job *entity.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}
