package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/humandetect/humandetect-service/internal/infra/localfs"
	"github.com/humandetect/humandetect-service/internal/shim"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]entity.Job
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: make(map[uuid.UUID]entity.Job)}
}

func (r *memRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.jobs[job.ID]; ok {
		return errors.New("duplicate job")
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	requests [][]byte
	statuses [][]byte
	dlq      []string
	err      error
}

func (p *recordingPublisher) PublishRequest(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, msg)
	return nil
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, msg)
	return nil
}

func (p *recordingPublisher) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dlq = append(p.dlq, reason)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, email, jobID, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, email+":"+jobID)
	return nil
}

type fixedProber float64

func (p fixedProber) Duration(context.Context, string) (float64, error) { return float64(p), nil }

type detectFunc func(ctx context.Context, in, out string) error

func (f detectFunc) Detect(ctx context.Context, in, out string) error { return f(ctx, in, out) }

func writeOutput(content string) detectFunc {
	return func(_ context.Context, _ string, out string) error {
		return os.WriteFile(out, []byte(content), 0644)
	}
}

type harness struct {
	repo       *memRepo
	storage    *localfs.Storage
	storageDir string
	pub        *recordingPublisher
	notifier   *recordingNotifier
	tracker    *Tracker
	tempDir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	storageDir := t.TempDir()
	storage, err := localfs.NewStorage(storageDir)
	require.NoError(t, err)
	return &harness{
		repo:       newMemRepo(),
		storage:    storage,
		storageDir: storageDir,
		pub:        &recordingPublisher{},
		notifier:   &recordingNotifier{},
		tracker:    NewTracker(),
		tempDir:    t.TempDir(),
	}
}

func (h *harness) shim(det detectFunc) *shim.Shim {
	return shim.New(det, shim.Config{TempDir: h.tempDir}, zap.NewNop())
}

func (h *harness) submit(t *testing.T, body string) *entity.Job {
	t.Helper()
	uc := NewSubmitJobUseCase(h.repo, h.storage, h.pub, zap.NewNop(), 3)
	job, err := uc.Execute(context.Background(), upload("walk.mp4", entity.VideoTypeMP4, body), "ops@example.com")
	require.NoError(t, err)
	return job
}

func (h *harness) processor(det detectFunc) *ProcessDetectionUseCase {
	return h.processorWith(h.storage, det)
}

func (h *harness) processorWith(storage port.ArtifactStorage, det detectFunc) *ProcessDetectionUseCase {
	return NewProcessDetectionUseCase(
		h.repo, storage, h.shim(det), fixedProber(4.5),
		h.pub, h.pub, h.notifier, h.tracker, zap.NewNop(),
		ProcessDetectionConfig{MaxRetries: 3},
	)
}

func (h *harness) lastRequest(t *testing.T) []byte {
	t.Helper()
	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	require.NotEmpty(t, h.pub.requests)
	return h.pub.requests[len(h.pub.requests)-1]
}

func (h *harness) job(t *testing.T, id uuid.UUID) *entity.Job {
	t.Helper()
	job, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

func upload(name string, vt entity.VideoType, body string) entity.UploadedVideo {
	return entity.UploadedVideo{Filename: name, Type: vt, Size: int64(len(body)), Body: strings.NewReader(body)}
}

// interruptedStorage serves inputs whose stream fails after running interrupt,
// the way a storage read fails once its context is torn down. With failOpen
// the open itself fails.
type interruptedStorage struct {
	*localfs.Storage
	interrupt func()
	failOpen  bool
}

func (s *interruptedStorage) OpenInput(ctx context.Context, _ string) (io.ReadCloser, error) {
	if s.failOpen {
		s.interrupt()
		return nil, ctx.Err()
	}
	return io.NopCloser(readerFunc(func([]byte) (int, error) {
		s.interrupt()
		return 0, context.Canceled
	})), nil
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
