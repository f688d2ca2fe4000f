package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/humandetect/humandetect-service/internal/domain/port"
)

var _ port.ArtifactStorage = (*Storage)(nil)

const (
	inputDir  = "inputs"
	resultDir = "results"
)

// Storage keeps artifacts under a base directory on the local filesystem.
type Storage struct {
	baseDir string
}

func NewStorage(baseDir string) (*Storage, error) {
	for _, dir := range []string{inputDir, resultDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &Storage{baseDir: baseDir}, nil
}

func (s *Storage) PutInput(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	if err := s.write(inputDir, key, reader); err != nil {
		return fmt.Errorf("store input: %w", err)
	}
	return nil
}

func (s *Storage) OpenInput(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(inputDir, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

func (s *Storage) DeleteInput(_ context.Context, key string) error {
	path, err := s.path(inputDir, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete input: %w", err)
	}
	return nil
}

func (s *Storage) PutResult(_ context.Context, key string, reader io.Reader, _ int64) error {
	if err := s.write(resultDir, key, reader); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *Storage) OpenResult(_ context.Context, key string) (io.ReadCloser, int64, error) {
	path, err := s.path(resultDir, key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open result: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat result: %w", err)
	}
	return f, info.Size(), nil
}

func (s *Storage) path(area, key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.baseDir, area, rel), nil
}

// write stages into a temp file and renames, so readers never see a partial object.
func (s *Storage) write(area, key string, reader io.Reader) error {
	path, err := s.path(area, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
