package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusNoOutput   JobStatus = "NO_OUTPUT"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the job reached a final status. FAILED jobs are
// still redelivered by the worker while attempts remain.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusNoOutput, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

type Job struct {
	ID            uuid.UUID  `json:"id"`
	OriginalName  string     `json:"original_name"`
	VideoType     VideoType  `json:"video_type"`
	InputKey      string     `json:"-"`
	OutputKey     string     `json:"-"`
	Status        JobStatus  `json:"status"`
	Reason        ReasonCode `json:"reason,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FileSize      int64      `json:"file_size"`
	OutputSize    int64      `json:"output_size,omitempty"`
	VideoDuration float64    `json:"video_duration,omitempty"`
	Attempt       int        `json:"attempt"`
	MaxAttempts   int        `json:"max_attempts"`
	NotifyEmail   string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func NewJob(originalName string, videoType VideoType, fileSize int64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		OriginalName: originalName,
		VideoType:    videoType,
		FileSize:     fileSize,
		Status:       JobStatusPending,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.Reason = ReasonNone
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(outputKey string, outputSize int64, duration float64) {
	j.finish(JobStatusCompleted, ReasonNone, "")
	j.OutputKey = outputKey
	j.OutputSize = outputSize
	j.VideoDuration = duration
}

func (j *Job) MarkNoOutput(reason ReasonCode) {
	j.finish(JobStatusNoOutput, reason, "")
}

func (j *Job) MarkFailed(reason ReasonCode, errMsg string) {
	j.Status = JobStatusFailed
	j.Reason = reason
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCancelled() {
	j.finish(JobStatusCancelled, ReasonCancelled, "cancelled by request")
}

func (j *Job) finish(status JobStatus, reason ReasonCode, errMsg string) {
	now := time.Now().UTC()
	j.Status = status
	j.Reason = reason
	j.ErrorMessage = errMsg
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
