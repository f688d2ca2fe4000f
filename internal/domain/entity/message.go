package entity

import "github.com/google/uuid"

// DetectionRequestMessage is the inbound message from the detection.request queue.
type DetectionRequestMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	InputKey    string    `json:"input_key"`
	VideoType   VideoType `json:"video_type"`
	FileSize    int64     `json:"file_size"`
	NotifyEmail string    `json:"notify_email,omitempty"`
}

// DetectionStatusMessage is the outbound message published to the detection.status queue.
type DetectionStatusMessage struct {
	JobID        uuid.UUID  `json:"job_id"`
	Status       JobStatus  `json:"status"`
	InputKey     string     `json:"input_key"`
	OutputKey    string     `json:"output_key,omitempty"`
	OutputSize   int64      `json:"output_size,omitempty"`
	Duration     float64    `json:"duration_seconds,omitempty"`
	Reason       ReasonCode `json:"reason,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempt      int        `json:"attempt"`
	MaxAttempts  int        `json:"max_attempts"`
}

func NewStatusMessage(job *Job) DetectionStatusMessage {
	return DetectionStatusMessage{
		JobID:        job.ID,
		Status:       job.Status,
		InputKey:     job.InputKey,
		OutputKey:    job.OutputKey,
		OutputSize:   job.OutputSize,
		Duration:     job.VideoDuration,
		Reason:       job.Reason,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
}
