package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/shim"
	"github.com/humandetect/humandetect-service/internal/usecase"
	"go.uber.org/zap"
)

const outcomeHeader = "X-Detection-Outcome"

type Detector interface {
	Execute(ctx context.Context, video entity.UploadedVideo, deliver func(*shim.Artifact) error) (entity.DetectionResult, error)
}

type JobSubmitter interface {
	Execute(ctx context.Context, video entity.UploadedVideo, notifyEmail string) (*entity.Job, error)
}

// JobFinder covers both lookup and cancellation, which share a signature.
type JobFinder interface {
	Execute(ctx context.Context, id uuid.UUID) (*entity.Job, error)
}

type ResultOpener interface {
	OpenResult(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

type Handler struct {
	detect       Detector
	submit       JobSubmitter
	get          JobFinder
	cancel       JobFinder
	results      ResultOpener
	pollInterval time.Duration
	logger       *zap.Logger
}

type HandlerDeps struct {
	Detect       Detector
	Submit       JobSubmitter
	Get          JobFinder
	Cancel       JobFinder
	Results      ResultOpener
	PollInterval time.Duration
}

func NewHandler(deps HandlerDeps, logger *zap.Logger) *Handler {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 500 * time.Millisecond
	}
	return &Handler{
		detect:       deps.Detect,
		submit:       deps.Submit,
		get:          deps.Get,
		cancel:       deps.Cancel,
		results:      deps.Results,
		pollInterval: deps.PollInterval,
		logger:       logger,
	}
}

type submitResponse struct {
	JobID       uuid.UUID        `json:"job_id"`
	Status      entity.JobStatus `json:"status"`
	StatusURL   string           `json:"status_url"`
	EventsURL   string           `json:"events_url"`
	DownloadURL string           `json:"download_url"`
}

// Detect is the blocking path: the processed video is streamed back in the
// response once detection finishes.
func (h *Handler) Detect(c *gin.Context) {
	video, closer, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	result, err := h.detect.Execute(c.Request.Context(), video, func(a *shim.Artifact) error {
		c.DataFromReader(http.StatusOK, a.Size, a.ContentType, a.File, map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", a.Filename),
			outcomeHeader:         string(entity.OutcomeSucceeded),
		})
		return nil
	})

	switch result.Outcome {
	case entity.OutcomeSucceeded:
		if err != nil {
			h.logger.Warn("download interrupted", zap.Error(err))
		}
	case entity.OutcomeNoOutput:
		c.Header(outcomeHeader, string(entity.OutcomeNoOutput))
		c.Status(http.StatusNoContent)
	default:
		c.Header(outcomeHeader, string(entity.OutcomeFailed))
		c.JSON(failureStatus(result.Reason), gin.H{"error": result.Message, "reason": result.Reason})
	}
}

func failureStatus(reason entity.ReasonCode) int {
	switch reason {
	case entity.ReasonUnsupportedType:
		return http.StatusBadRequest
	case entity.ReasonTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *Handler) SubmitJob(c *gin.Context) {
	video, closer, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	job, err := h.submit.Execute(c.Request.Context(), video, c.PostForm("notify_email"))
	switch {
	case errors.Is(err, entity.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": entity.ReasonUnsupportedType})
		return
	case err != nil && job != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job could not be queued", "job_id": job.ID})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	base := "/api/v1/jobs/" + job.ID.String()
	c.JSON(http.StatusAccepted, submitResponse{
		JobID:       job.ID,
		Status:      job.Status,
		StatusURL:   base,
		EventsURL:   base + "/events",
		DownloadURL: base + "/download",
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.lookup(c, h.get)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// Events streams the job as server-sent events until it reaches a final status.
func (h *Handler) Events(c *gin.Context) {
	job, ok := h.lookup(c, h.get)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		c.SSEvent("status", job)
		c.Writer.Flush()
		if job.Status.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := h.get.Execute(ctx, job.ID)
		if err != nil {
			c.SSEvent("error", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		job = next
	}
}

func (h *Handler) Download(c *gin.Context) {
	job, ok := h.lookup(c, h.get)
	if !ok {
		return
	}
	if job.Status != entity.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "result not available", "status": job.Status})
		return
	}

	rc, size, err := h.results.OpenResult(c.Request.Context(), job.OutputKey)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open result"})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, shim.DownloadContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", shim.DownloadFilename),
	})
}

func (h *Handler) CancelJob(c *gin.Context) {
	job, ok := h.lookup(c, h.cancel)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// lookup parses :id and runs find, writing the error response itself.
func (h *Handler) lookup(c *gin.Context, find JobFinder) (*entity.Job, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}

	job, err := find.Execute(c.Request.Context(), id)
	switch {
	case errors.Is(err, usecase.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	case errors.Is(err, usecase.ErrJobFinished):
		resp := gin.H{"error": "job already finished"}
		if job != nil {
			resp["status"] = job.Status
		}
		c.JSON(http.StatusConflict, resp)
		return nil, false
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job lookup failed"})
		return nil, false
	}
	return job, true
}

// readUpload validates the multipart "file" field against the type allow-list.
func (h *Handler) readUpload(c *gin.Context) (entity.UploadedVideo, io.Closer, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return entity.UploadedVideo{}, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return entity.UploadedVideo{}, nil, false
	}

	vt, err := entity.ParseVideoType(fh.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Unsupported file type. Please upload an MP4, AVI or MOV video.",
			"reason": entity.ReasonUnsupportedType,
		})
		return entity.UploadedVideo{}, nil, false
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return entity.UploadedVideo{}, nil, false
	}

	return entity.UploadedVideo{
		Filename: fh.Filename,
		Type:     vt,
		Size:     fh.Size,
		Body:     f,
	}, f, true
}
