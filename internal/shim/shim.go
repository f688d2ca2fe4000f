// Package shim moves one uploaded video through the detection engine: it
// persists the upload to a temp file, dispatches the engine, exposes the
// produced video for download and always removes both temp files afterwards.
package shim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/humandetect/humandetect-service/internal/domain/entity"
	"github.com/humandetect/humandetect-service/internal/domain/port"
	"go.uber.org/zap"
)

const (
	DownloadFilename    = "processed_video.mp4"
	DownloadContentType = "video/mp4"

	inputPattern     = "upload-*"
	outputPrefix     = "output-"
	sharedOutputName = "output.mp4"
)

var (
	ErrInvalidState = errors.New("request is not in the expected state")
	ErrShortUpload  = errors.New("upload shorter than declared size")
)

// OutputLayout decides where the engine writes its result.
type OutputLayout string

const (
	// LayoutUnique derives the output path from the request ID.
	LayoutUnique OutputLayout = "unique"
	// LayoutShared writes every request to TempDir/output.mp4. Overlapping
	// requests can overwrite or delete each other's output in this layout.
	LayoutShared OutputLayout = "shared"
)

type Config struct {
	TempDir       string
	Layout        OutputLayout
	DetectTimeout time.Duration
}

type State string

const (
	StateIdle       State = "idle"
	StateReady      State = "ready"
	StateProcessing State = "processing"
	StateDone       State = "done"
)

type InputFile struct {
	Path string
	Type entity.VideoType
	Size int64
}

// Request is owned by a single goroutine for its whole lifetime.
type Request struct {
	ID         string
	Input      InputFile
	OutputPath string
	State      State

	artifact *Artifact
}

// Artifact is the processed video opened for download. It stays valid until Cleanup.
type Artifact struct {
	File        *os.File
	Filename    string
	ContentType string
	Size        int64
}

type Shim struct {
	detector port.HumanDetector
	cfg      Config
	logger   *zap.Logger

	mu   sync.Mutex
	live map[string]int // temp paths owned by requests in flight
}

func New(detector port.HumanDetector, cfg Config, logger *zap.Logger) *Shim {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutUnique
	}
	return &Shim{detector: detector, cfg: cfg, logger: logger, live: make(map[string]int)}
}

func (s *Shim) hold(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.live[p]++
	}
}

func (s *Shim) release(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if s.live[p] <= 1 {
			delete(s.live, p)
		} else {
			s.live[p]--
		}
	}
}

func (s *Shim) inUse(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[path] > 0
}

// Accept writes the upload to a new uniquely named temp file carrying the declared extension.
func (s *Shim) Accept(ctx context.Context, video entity.UploadedVideo) (*Request, error) {
	if !video.Type.Valid() {
		return nil, fmt.Errorf("accept %q: %w", video.Filename, entity.ErrUnsupportedType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	f, err := os.CreateTemp(s.cfg.TempDir, inputPattern+video.Type.Extension())
	if err != nil {
		return nil, fmt.Errorf("create input file: %w", err)
	}
	s.hold(f.Name())

	n, err := io.Copy(f, video.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && video.Size >= 0 && n != video.Size {
		err = fmt.Errorf("%w: got %d of %d bytes", ErrShortUpload, n, video.Size)
	}
	if err != nil {
		os.Remove(f.Name())
		s.release(f.Name())
		code := entity.ReasonInputUnreadable
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The reader failed because the caller gave up, not because the upload is bad.
			code = entity.ReasonOf(ctxErr)
		}
		return nil, entity.NewDetectionError(code, fmt.Errorf("write input file: %w", err))
	}

	id := uuid.New().String()
	req := &Request{
		ID:         id,
		Input:      InputFile{Path: f.Name(), Type: video.Type, Size: n},
		OutputPath: s.outputPath(id),
		State:      StateReady,
	}
	s.hold(req.OutputPath)
	return req, nil
}

func (s *Shim) outputPath(requestID string) string {
	if s.cfg.Layout == LayoutShared {
		return filepath.Join(s.cfg.TempDir, sharedOutputName)
	}
	return filepath.Join(s.cfg.TempDir, outputPrefix+requestID+".mp4")
}

// Dispatch runs the engine and blocks until it returns, the configured timeout
// expires or ctx is cancelled. Failures come back as *entity.DetectionError.
func (s *Shim) Dispatch(ctx context.Context, req *Request) error {
	if req.State != StateReady {
		return fmt.Errorf("dispatch from %s: %w", req.State, ErrInvalidState)
	}
	req.State = StateProcessing

	if s.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DetectTimeout)
		defer cancel()
	}

	err := s.detector.Detect(ctx, req.Input.Path, req.OutputPath)
	if err == nil {
		return nil
	}

	var de *entity.DetectionError
	if errors.As(err, &de) {
		return err
	}
	code := entity.ReasonOf(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		code = entity.ReasonOf(ctxErr)
	}
	return entity.NewDetectionError(code, err)
}

// Finalize turns the dispatch outcome into a result. A non-empty output file
// is opened and returned as the artifact; a missing or empty one is NO_OUTPUT.
func (s *Shim) Finalize(req *Request, dispatchErr error) (entity.DetectionResult, *Artifact) {
	if dispatchErr != nil {
		return entity.DetectionResult{
			Outcome: entity.OutcomeFailed,
			Reason:  entity.ReasonOf(dispatchErr),
			Message: "Error processing video: " + engineText(dispatchErr),
		}, nil
	}

	info, err := os.Stat(req.OutputPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return entity.DetectionResult{Outcome: entity.OutcomeNoOutput, Reason: entity.ReasonOutputMissing}, nil
	case err != nil:
		return entity.DetectionResult{
			Outcome: entity.OutcomeFailed,
			Reason:  entity.ReasonInternal,
			Message: "Error processing video: " + err.Error(),
		}, nil
	case info.Size() == 0:
		return entity.DetectionResult{Outcome: entity.OutcomeNoOutput, Reason: entity.ReasonOutputEmpty}, nil
	}

	f, err := os.Open(req.OutputPath)
	if err != nil {
		return entity.DetectionResult{
			Outcome: entity.OutcomeFailed,
			Reason:  entity.ReasonInternal,
			Message: "Error processing video: " + err.Error(),
		}, nil
	}

	req.artifact = &Artifact{
		File:        f,
		Filename:    DownloadFilename,
		ContentType: DownloadContentType,
		Size:        info.Size(),
	}
	return entity.DetectionResult{Outcome: entity.OutcomeSucceeded, OutputSize: info.Size()}, req.artifact
}

// Cleanup removes the input file and, when present, the output file. It is safe to call twice.
func (s *Shim) Cleanup(req *Request) error {
	var errs []error
	if req.artifact != nil {
		req.artifact.File.Close()
		req.artifact = nil
	}
	if err := os.Remove(req.Input.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove input: %w", err))
	}
	if err := os.Remove(req.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove output: %w", err))
	}
	if req.State != StateDone {
		s.release(req.Input.Path, req.OutputPath)
	}
	req.State = StateDone
	return errors.Join(errs...)
}

// Process runs one request end to end. deliver is called with the artifact
// only when detection produced a non-empty output, and before cleanup.
// The returned error is reserved for accept and deliver failures; detection
// failures are reported through the result.
func (s *Shim) Process(ctx context.Context, video entity.UploadedVideo, deliver func(*Artifact) error) (entity.DetectionResult, error) {
	req, err := s.Accept(ctx, video)
	if err != nil {
		return entity.DetectionResult{
			Outcome: entity.OutcomeFailed,
			Reason:  entity.ReasonOf(err),
			Message: engineText(err),
		}, err
	}

	log := s.logger.With(
		zap.String("request_id", req.ID),
		zap.String("input", req.Input.Path),
		zap.String("output", req.OutputPath),
	)
	defer func() {
		if err := s.Cleanup(req); err != nil {
			log.Warn("temp file cleanup failed", zap.Error(err))
		}
	}()

	start := time.Now()
	dispatchErr := s.Dispatch(ctx, req)
	result, artifact := s.Finalize(req, dispatchErr)

	log.Info("detection finished",
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", string(result.Reason)),
		zap.Int64("output_size", result.OutputSize),
		zap.Duration("elapsed", time.Since(start)),
		zap.NamedError("engine_error", dispatchErr),
	)

	if artifact != nil && deliver != nil {
		if err := deliver(artifact); err != nil {
			return result, fmt.Errorf("deliver artifact: %w", err)
		}
	}
	return result, nil
}

func engineText(err error) string {
	var de *entity.DetectionError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}
