package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/shim"
	"github.com/humandetect/humandetect-service/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type detectFunc func(ctx context.Context, in, out string) error

func (f detectFunc) Detect(ctx context.Context, in, out string) error { return f(ctx, in, out) }

type findFunc func(ctx context.Context, id uuid.UUID) (*entity.Job, error)

func (f findFunc) Execute(ctx context.Context, id uuid.UUID) (*entity.Job, error) { return f(ctx, id) }

type submitFunc func(ctx context.Context, video entity.UploadedVideo, email string) (*entity.Job, error)

func (f submitFunc) Execute(ctx context.Context, video entity.UploadedVideo, email string) (*entity.Job, error) {
	return f(ctx, video, email)
}

type memResults map[string]string

func (m memResults) OpenResult(_ context.Context, key string) (io.ReadCloser, int64, error) {
	data, ok := m[key]
	if !ok {
		return nil, 0, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(data)), int64(len(data)), nil
}

func notFound(context.Context, uuid.UUID) (*entity.Job, error) {
	return nil, usecase.ErrJobNotFound
}

func newTestRouter(t *testing.T, engine detectFunc, deps HandlerDeps, cfg RouterConfig) (*gin.Engine, string) {
	t.Helper()
	tempDir := t.TempDir()
	s := shim.New(engine, shim.Config{TempDir: tempDir}, zap.NewNop())
	deps.Detect = usecase.NewDetectUploadUseCase(s, zap.NewNop())
	if deps.Get == nil {
		deps.Get = findFunc(notFound)
	}
	if deps.Cancel == nil {
		deps.Cancel = findFunc(notFound)
	}
	deps.PollInterval = 5 * time.Millisecond
	return NewRouter(NewHandler(deps, zap.NewNop()), cfg, zap.NewNop()), tempDir
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postUpload(t *testing.T, r http.Handler, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content, nil)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func writeOutput(content string) detectFunc {
	return func(_ context.Context, _ string, out string) error {
		return os.WriteFile(out, []byte(content), 0644)
	}
}

func TestDetectStreamsProcessedVideo(t *testing.T) {
	r, tempDir := newTestRouter(t, writeOutput("annotated"), HandlerDeps{}, RouterConfig{})

	rec := postUpload(t, r, "/api/v1/detect", "walk.mp4", "raw-frames")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="processed_video.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "annotated", rec.Body.String())

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectNoOutputIsSilent(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context, string, string) error { return nil }, HandlerDeps{}, RouterConfig{})

	rec := postUpload(t, r, "/api/v1/detect", "walk.mov", "raw-frames")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "NO_OUTPUT", rec.Header().Get(outcomeHeader))
	assert.Empty(t, rec.Body.String())
}

func TestDetectEngineFailure(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context, string, string) error {
		return errors.New("could not open codec")
	}, HandlerDeps{}, RouterConfig{})

	rec := postUpload(t, r, "/api/v1/detect", "walk.avi", "raw-frames")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Error processing video: could not open codec", body["error"])
	assert.Equal(t, "engine_failed", body["reason"])
}

func TestDetectTimeout(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context, string, string) error {
		return entity.NewDetectionError(entity.ReasonTimeout, context.DeadlineExceeded)
	}, HandlerDeps{}, RouterConfig{})

	rec := postUpload(t, r, "/api/v1/detect", "walk.mp4", "raw-frames")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestDetectRejectsBadUploads(t *testing.T) {
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{}, RouterConfig{MaxUploadBytes: 1024})

	rec := postUpload(t, r, "/api/v1/detect", "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_type")

	rec = postUpload(t, r, "/api/v1/detect", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postUpload(t, r, "/api/v1/detect", "big.mp4", strings.Repeat("x", 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmitJobReturnsLinks(t *testing.T) {
	job := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	var gotEmail string
	submit := submitFunc(func(_ context.Context, v entity.UploadedVideo, email string) (*entity.Job, error) {
		gotEmail = email
		assert.Equal(t, entity.VideoTypeMP4, v.Type)
		return job, nil
	})
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Submit: submit}, RouterConfig{})

	body, ct := multipartBody(t, "walk.mp4", "raw", map[string]string{"notify_email": "ops@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, entity.JobStatusPending, resp.Status)
	assert.Equal(t, "/api/v1/jobs/"+job.ID.String()+"/events", resp.EventsURL)
	assert.Equal(t, "ops@example.com", gotEmail)
}

func TestSubmitJobQueueFailure(t *testing.T) {
	job := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	submit := submitFunc(func(context.Context, entity.UploadedVideo, string) (*entity.Job, error) {
		return job, errors.New("queue job: channel closed")
	})
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Submit: submit}, RouterConfig{})

	rec := postUpload(t, r, "/api/v1/jobs", "walk.mp4", "raw")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJob(t *testing.T) {
	job := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	get := findFunc(func(_ context.Context, id uuid.UUID) (*entity.Job, error) {
		if id == job.ID {
			return job, nil
		}
		return nil, usecase.ErrJobNotFound
	})
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Get: get}, RouterConfig{})

	cases := map[string]int{
		"/api/v1/jobs/" + job.ID.String():  http.StatusOK,
		"/api/v1/jobs/" + uuid.NewString(): http.StatusNotFound,
		"/api/v1/jobs/not-a-uuid":          http.StatusBadRequest,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestEventsStreamUntilTerminal(t *testing.T) {
	job := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	calls := 0
	get := findFunc(func(context.Context, uuid.UUID) (*entity.Job, error) {
		calls++
		j := *job
		switch {
		case calls == 1:
		case calls == 2:
			j.MarkProcessing()
		default:
			j.MarkCompleted("k", 9, 1)
		}
		return &j, nil
	})
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Get: get}, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String()+"/events", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event:status"))
	assert.Contains(t, body, `"status":"PENDING"`)
	assert.Contains(t, body, `"status":"PROCESSING"`)
	assert.Contains(t, body, `"status":"COMPLETED"`)
}

func TestDownload(t *testing.T) {
	done := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	done.MarkCompleted(done.ID.String()+"/processed_video.mp4", 9, 1)
	pending := entity.NewJob("run.mp4", entity.VideoTypeMP4, 3, 3)

	get := findFunc(func(_ context.Context, id uuid.UUID) (*entity.Job, error) {
		switch id {
		case done.ID:
			return done, nil
		case pending.ID:
			return pending, nil
		}
		return nil, usecase.ErrJobNotFound
	})
	results := memResults{done.OutputKey: "annotated"}
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Get: get, Results: results}, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+done.ID.String()+"/download", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "annotated", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+pending.ID.String()+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJob(t *testing.T) {
	running := entity.NewJob("walk.mp4", entity.VideoTypeMP4, 3, 3)
	finished := entity.NewJob("run.mp4", entity.VideoTypeMP4, 3, 3)
	finished.MarkCompleted("k", 1, 1)

	cancel := findFunc(func(_ context.Context, id uuid.UUID) (*entity.Job, error) {
		switch id {
		case running.ID:
			return running, nil
		case finished.ID:
			return finished, usecase.ErrJobFinished
		}
		return nil, usecase.ErrJobNotFound
	})
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{Cancel: cancel}, RouterConfig{})

	cases := map[uuid.UUID]int{
		running.ID:  http.StatusAccepted,
		finished.ID: http.StatusConflict,
		uuid.New():  http.StatusNotFound,
	}
	for id, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+id.String(), nil))
		assert.Equal(t, want, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	r, _ := newTestRouter(t, writeOutput("x"), HandlerDeps{}, RouterConfig{AllowedOrigins: []string{"http://app.test"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/detect", nil)
	req.Header.Set("Origin", "http://app.test")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
