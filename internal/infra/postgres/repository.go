package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ port.JobRepository = (*JobRepository)(nil)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO detection_jobs (
			id, original_name, video_type, input_key, output_key, status, reason,
			error_message, file_size, output_size, video_duration, attempt,
			max_attempts, notify_email, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.OriginalName, string(job.VideoType), job.InputKey, job.OutputKey,
		string(job.Status), string(job.Reason), job.ErrorMessage,
		job.FileSize, job.OutputSize, job.VideoDuration, job.Attempt,
		job.MaxAttempts, job.NotifyEmail, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE detection_jobs SET
			status=$2, reason=$3, error_message=$4, output_key=$5, output_size=$6,
			video_duration=$7, attempt=$8, updated_at=$9, completed_at=$10
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), string(job.Reason), job.ErrorMessage,
		job.OutputKey, job.OutputSize, job.VideoDuration, job.Attempt,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, original_name, video_type, input_key, output_key, status, reason,
			error_message, file_size, output_size, video_duration, attempt,
			max_attempts, notify_email, created_at, updated_at, completed_at
		FROM detection_jobs WHERE id=$1`

	job := &entity.Job{}
	var videoType, status, reason string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.OriginalName, &videoType, &job.InputKey, &job.OutputKey,
		&status, &reason, &job.ErrorMessage, &job.FileSize, &job.OutputSize,
		&job.VideoDuration, &job.Attempt, &job.MaxAttempts, &job.NotifyEmail,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.VideoType = entity.VideoType(videoType)
	job.Status = entity.JobStatus(status)
	job.Reason = entity.ReasonCode(reason)
	return job, nil
}
