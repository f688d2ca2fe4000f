package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/humandetect/humandetect-service/internal/domain/port"
)

var _ port.ArtifactStorage = (*Storage)(nil)

// Storage keeps artifacts in AWS S3 or any S3-compatible endpoint.
type Storage struct {
	client       *awss3.Client
	uploader     *manager.Uploader
	inputBucket  string
	resultBucket string
}

type StorageConfig struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
	InputBucket  string
	ResultBucket string
}

func NewStorage(ctx context.Context, cfg StorageConfig) (*Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Storage{
		client:       client,
		uploader:     manager.NewUploader(client),
		inputBucket:  cfg.InputBucket,
		resultBucket: cfg.ResultBucket,
	}, nil
}

func (s *Storage) PutInput(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := s.put(ctx, s.inputBucket, key, reader, contentType); err != nil {
		return fmt.Errorf("upload input: %w", err)
	}
	return nil
}

func (s *Storage) OpenInput(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.inputBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return out.Body, nil
}

func (s *Storage) DeleteInput(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.inputBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete input: %w", err)
	}
	return nil
}

func (s *Storage) PutResult(ctx context.Context, key string, reader io.Reader, size int64) error {
	if err := s.put(ctx, s.resultBucket, key, reader, "video/mp4"); err != nil {
		return fmt.Errorf("upload result: %w", err)
	}
	return nil
}

func (s *Storage) OpenResult(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.resultBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open result: %w", err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// put goes through the multipart uploader so readers of unknown length work.
func (s *Storage) put(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error {
	_, err := s.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	})
	return err
}
