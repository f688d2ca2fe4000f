package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/mattn/go-sqlite3"
)

var _ port.JobRepository = (*JobRepository)(nil)

var ErrDuplicateJob = errors.New("job already exists")

const schema = `
	CREATE TABLE IF NOT EXISTS detection_jobs (
		id             TEXT PRIMARY KEY,
		original_name  TEXT NOT NULL,
		video_type     TEXT NOT NULL,
		input_key      TEXT NOT NULL,
		output_key     TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		error_message  TEXT NOT NULL DEFAULT '',
		file_size      INTEGER NOT NULL DEFAULT 0,
		output_size    INTEGER NOT NULL DEFAULT 0,
		video_duration REAL NOT NULL DEFAULT 0,
		attempt        INTEGER NOT NULL DEFAULT 0,
		max_attempts   INTEGER NOT NULL,
		notify_email   TEXT NOT NULL DEFAULT '',
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL,
		completed_at   DATETIME
	)`

// JobRepository stores jobs in a single SQLite file, for single-host deployments.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(path string) (*JobRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &JobRepository{db: db}, nil
}

func (r *JobRepository) Close() error {
	return r.db.Close()
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO detection_jobs (
			id, original_name, video_type, input_key, output_key, status, reason,
			error_message, file_size, output_size, video_duration, attempt,
			max_attempts, notify_email, created_at, updated_at, completed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID.String(), job.OriginalName, string(job.VideoType), job.InputKey, job.OutputKey,
		string(job.Status), string(job.Reason), job.ErrorMessage,
		job.FileSize, job.OutputSize, job.VideoDuration, job.Attempt,
		job.MaxAttempts, job.NotifyEmail, job.CreatedAt, job.UpdatedAt, nullTime(job.CompletedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("insert job %s: %w", job.ID, ErrDuplicateJob)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE detection_jobs SET
			status=?, reason=?, error_message=?, output_key=?, output_size=?,
			video_duration=?, attempt=?, updated_at=?, completed_at=?
		WHERE id=?`,
		string(job.Status), string(job.Reason), job.ErrorMessage, job.OutputKey,
		job.OutputSize, job.VideoDuration, job.Attempt, job.UpdatedAt,
		nullTime(job.CompletedAt), job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, port.ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, original_name, video_type, input_key, output_key, status, reason,
			error_message, file_size, output_size, video_duration, attempt,
			max_attempts, notify_email, created_at, updated_at, completed_at
		FROM detection_jobs WHERE id=?`, id.String())

	job := &entity.Job{}
	var rawID, videoType, status, reason string
	var completedAt sql.NullTime
	err := row.Scan(
		&rawID, &job.OriginalName, &videoType, &job.InputKey, &job.OutputKey,
		&status, &reason, &job.ErrorMessage, &job.FileSize, &job.OutputSize,
		&job.VideoDuration, &job.Attempt, &job.MaxAttempts, &job.NotifyEmail,
		&job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}

	if job.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.VideoType = entity.VideoType(videoType)
	job.Status = entity.JobStatus(status)
	job.Reason = entity.ReasonCode(reason)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
