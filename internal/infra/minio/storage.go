package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/humandetect/humandetect-service/internal/domain/port"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ port.ArtifactStorage = (*Storage)(nil)

type Storage struct {
	client       *miniogo.Client
	inputBucket  string
	resultBucket string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	InputBucket  string
	ResultBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:       client,
		inputBucket:  cfg.InputBucket,
		resultBucket: cfg.ResultBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.inputBucket, s.resultBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) PutInput(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.inputBucket, key, reader, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload input: %w", err)
	}
	return nil
}

func (s *Storage) OpenInput(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, _, err := s.open(ctx, s.inputBucket, key)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return obj, nil
}

func (s *Storage) DeleteInput(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.inputBucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete input: %w", err)
	}
	return nil
}

func (s *Storage) PutResult(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.resultBucket, key, reader, size, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("upload result: %w", err)
	}
	return nil
}

func (s *Storage) OpenResult(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, size, err := s.open(ctx, s.resultBucket, key)
	if err != nil {
		return nil, 0, fmt.Errorf("open result: %w", err)
	}
	return obj, size, nil
}

// open stats the object up front; GetObject alone defers errors to the first Read.
func (s *Storage) open(ctx context.Context, bucket, key string) (*miniogo.Object, int64, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, err
	}
	return obj, info.Size, nil
}
