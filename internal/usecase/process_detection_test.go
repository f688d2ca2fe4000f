package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDetectionCompletesJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	err := h.processor(writeOutput("annotated")).Execute(context.Background(), h.lastRequest(t))
	require.NoError(t, err)

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, job.ID.String()+"/processed_video.mp4", stored.OutputKey)
	assert.Equal(t, int64(len("annotated")), stored.OutputSize)
	assert.Equal(t, 4.5, stored.VideoDuration)
	assert.Equal(t, 1, stored.Attempt)
	assert.NotNil(t, stored.CompletedAt)

	rc, size, err := h.storage.OpenResult(context.Background(), stored.OutputKey)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "annotated", string(data))
	assert.Equal(t, int64(len("annotated")), size)

	var last entity.DetectionStatusMessage
	require.NoError(t, json.Unmarshal(h.pub.statuses[len(h.pub.statuses)-1], &last))
	assert.Equal(t, entity.JobStatusCompleted, last.Status)

	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDetectionNoOutputIsNotRetried(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	noop := func(context.Context, string, string) error { return nil }
	err := h.processor(noop).Execute(context.Background(), h.lastRequest(t))
	require.NoError(t, err)

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusNoOutput, stored.Status)
	assert.Equal(t, entity.ReasonOutputMissing, stored.Reason)
	assert.Empty(t, h.pub.dlq)
}

func TestProcessDetectionEngineFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	failing := func(context.Context, string, string) error { return errors.New("segfault") }
	err := h.processor(failing).Execute(context.Background(), h.lastRequest(t))

	var re *RetryableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.FailedAttempt())
	assert.Equal(t, entity.ReasonEngineFailed, re.Reason)

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "segfault")
	assert.Empty(t, h.pub.dlq)
}

func TestProcessDetectionSendsToDLQAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")
	raw := h.lastRequest(t)

	failing := func(context.Context, string, string) error { return errors.New("segfault") }
	uc := h.processor(failing)

	for i := 0; i < 2; i++ {
		var re *RetryableError
		require.ErrorAs(t, uc.Execute(context.Background(), raw), &re)
	}
	require.NoError(t, uc.Execute(context.Background(), raw))

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempt)
	assert.Len(t, h.pub.dlq, 1)
	assert.Equal(t, []string{"ops@example.com:" + job.ID.String()}, h.notifier.sends)
}

func TestProcessDetectionUnavailableEngineFailsPermanently(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	missing := func(context.Context, string, string) error {
		return entity.NewDetectionError(entity.ReasonEngineUnavailable, errors.New("detect_humans not found"))
	}
	require.NoError(t, h.processor(missing).Execute(context.Background(), h.lastRequest(t)))

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Equal(t, entity.ReasonEngineUnavailable, stored.Reason)
	assert.Len(t, h.pub.dlq, 1)
	assert.Len(t, h.notifier.sends, 1)
}

func TestProcessDetectionMalformedMessageGoesToDLQ(t *testing.T) {
	h := newHarness(t)
	err := h.processor(writeOutput("x")).Execute(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	require.Len(t, h.pub.dlq, 1)
	assert.Contains(t, h.pub.dlq[0], "unmarshal_error")
}

func TestProcessDetectionSkipsCancelledJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")
	job.MarkCancelled()
	require.NoError(t, h.repo.Update(context.Background(), job))

	called := false
	det := func(context.Context, string, string) error { called = true; return nil }
	require.NoError(t, h.processor(det).Execute(context.Background(), h.lastRequest(t)))

	assert.False(t, called)
	assert.Equal(t, entity.JobStatusCancelled, h.job(t, job.ID).Status)
}

func TestProcessDetectionCreatesMissingJobRecord(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	key := InputKey(id, entity.VideoTypeMOV)
	require.NoError(t, h.storage.PutInput(context.Background(), key, upload("", entity.VideoTypeMOV, "mov").Body, 3, "video/quicktime"))

	raw, err := json.Marshal(entity.DetectionRequestMessage{JobID: id, InputKey: key, VideoType: entity.VideoTypeMOV, FileSize: 3})
	require.NoError(t, err)
	require.NoError(t, h.processor(writeOutput("annotated")).Execute(context.Background(), raw))

	assert.Equal(t, entity.JobStatusCompleted, h.job(t, id).Status)
}

func TestProcessDetectionCancelledThroughTracker(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	blocking := func(ctx context.Context, _, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	raw := h.lastRequest(t)
	done := make(chan error, 1)
	go func() {
		done <- h.processor(blocking).Execute(context.Background(), raw)
	}()

	require.Eventually(t, func() bool { return h.tracker.Running(job.ID) }, 2*time.Second, 10*time.Millisecond)

	cancel := NewCancelJobUseCase(h.repo, h.tracker, h.pub, zapNop())
	_, err := cancel.Execute(context.Background(), job.ID)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusCancelled, stored.Status)
	assert.Equal(t, entity.ReasonCancelled, stored.Reason)

	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDetectionShutdownRequeues(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	ctx, cancel := context.WithCancel(context.Background())
	blocking := func(ctx context.Context, _, _ string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	err := h.processor(blocking).Execute(ctx, h.lastRequest(t))

	var re *RetryableError
	require.ErrorAs(t, err, &re)
	assert.NotEqual(t, entity.JobStatusCancelled, h.job(t, job.ID).Status)
}

func TestProcessDetectionShutdownDuringInputCopyRequeues(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storage := &interruptedStorage{Storage: h.storage, interrupt: cancel}
	called := false
	det := func(context.Context, string, string) error { called = true; return nil }

	err := h.processorWith(storage, det).Execute(ctx, h.lastRequest(t))

	var re *RetryableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, entity.ReasonCancelled, re.Reason)
	assert.False(t, called)

	stored := h.job(t, job.ID)
	assert.NotEqual(t, entity.JobStatusFailed, stored.Status)
	assert.NotEqual(t, entity.JobStatusCancelled, stored.Status)
	assert.Empty(t, h.pub.dlq)
	assert.Empty(t, h.notifier.sends)

	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDetectionCancelDuringInputCopy(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	storage := &interruptedStorage{Storage: h.storage, interrupt: func() { h.tracker.Cancel(job.ID) }}
	err := h.processorWith(storage, writeOutput("annotated")).Execute(context.Background(), h.lastRequest(t))
	require.NoError(t, err)

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusCancelled, stored.Status)
	assert.Equal(t, entity.ReasonCancelled, stored.Reason)
	assert.Empty(t, h.pub.dlq)
	assert.Empty(t, h.notifier.sends)
}

func TestProcessDetectionCancelBeforeInputOpens(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "raw-frames")

	storage := &interruptedStorage{Storage: h.storage, interrupt: func() { h.tracker.Cancel(job.ID) }, failOpen: true}
	err := h.processorWith(storage, writeOutput("annotated")).Execute(context.Background(), h.lastRequest(t))
	require.NoError(t, err)

	stored := h.job(t, job.ID)
	assert.Equal(t, entity.JobStatusCancelled, stored.Status)
	assert.Empty(t, h.pub.dlq)
}
