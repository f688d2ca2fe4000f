// Package app builds the adapters selected by configuration. Both binaries
// wire through it so the API and the worker always agree on storage, job
// store and queue topology.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/humandetect/humandetect-service/internal/domain/port"
	"github.com/humandetect/humandetect-service/internal/infra/config"
	"github.com/humandetect/humandetect-service/internal/infra/detector"
	"github.com/humandetect/humandetect-service/internal/infra/email"
	"github.com/humandetect/humandetect-service/internal/infra/ffmpeg"
	"github.com/humandetect/humandetect-service/internal/infra/localfs"
	miniostorage "github.com/humandetect/humandetect-service/internal/infra/minio"
	"github.com/humandetect/humandetect-service/internal/infra/postgres"
	"github.com/humandetect/humandetect-service/internal/infra/rabbitmq"
	s3storage "github.com/humandetect/humandetect-service/internal/infra/s3"
	"github.com/humandetect/humandetect-service/internal/infra/sqlite"
	"github.com/humandetect/humandetect-service/internal/shim"
	"github.com/humandetect/humandetect-service/internal/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func NewStorage(ctx context.Context, cfg *config.Config) (port.ArtifactStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:     cfg.MinIOEndpoint,
			AccessKey:    cfg.MinIOAccessKey,
			SecretKey:    cfg.MinIOSecretKey,
			UseSSL:       cfg.MinIOUseSSL,
			InputBucket:  cfg.MinIOInputBucket,
			ResultBucket: cfg.MinIOResultBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio storage: %w", err)
		}
		if err := storage.EnsureBuckets(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio buckets: %w", err)
		}
		return storage, nil
	case config.StorageS3:
		storage, err := s3storage.NewStorage(ctx, s3storage.StorageConfig{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
			InputBucket:  cfg.S3InputBucket,
			ResultBucket: cfg.S3ResultBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 storage: %w", err)
		}
		return storage, nil
	case config.StorageFS:
		storage, err := localfs.NewStorage(cfg.FSStorageDir)
		if err != nil {
			return nil, err
		}
		return storage, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// NewJobRepository returns the configured job store and a func releasing it.
func NewJobRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.JobRepository, func(), error) {
	switch cfg.JobStore {
	case config.JobStorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.Migrations); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
		return postgres.NewJobRepository(pool), pool.Close, nil
	case config.JobStoreSQLite:
		repo, err := sqlite.NewJobRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown job store %q", cfg.JobStore)
}

func NewShim(cfg *config.Config, log *zap.Logger) (*shim.Shim, error) {
	hog := detector.DefaultHOGConfig()
	det, err := detector.New(detector.Config{
		Kind:   cfg.Detector,
		Binary: cfg.DetectorBinary,
		Args:   cfg.DetectorArgs,
		HOG:    hog,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	return shim.New(det, shim.Config{
		TempDir:       cfg.TempDir,
		Layout:        shim.OutputLayout(cfg.OutputLayout),
		DetectTimeout: cfg.DetectTimeout,
	}, log), nil
}

func Topology(cfg *config.Config) rabbitmq.Topology {
	return rabbitmq.Topology{
		Exchange:     cfg.RabbitMQExchange,
		RequestQueue: cfg.RabbitMQRequestQueue,
		StatusQueue:  cfg.RabbitMQStatusQueue,
		DLQ:          cfg.RabbitMQDLQ,
	}
}

// Messaging holds the publisher side of the broker connection.
type Messaging struct {
	conn *amqp.Connection
	pub  *rabbitmq.Publisher

	Requests *rabbitmq.RequestPublisher
	Status   *rabbitmq.StatusPublisher
	DLQ      *rabbitmq.DLQPublisher
}

func NewMessaging(cfg *config.Config) (*Messaging, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = Topology(cfg).Declare(ch)
	ch.Close()
	if err != nil {
		conn.Close()
		return nil, err
	}

	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Messaging{
		conn:     conn,
		pub:      pub,
		Requests: rabbitmq.NewRequestPublisher(pub),
		Status:   rabbitmq.NewStatusPublisher(pub),
		DLQ:      rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
	}, nil
}

func (m *Messaging) Ready(context.Context) error {
	if m.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (m *Messaging) Close() {
	m.pub.Close()
	m.conn.Close()
}

func NewConsumer(cfg *config.Config, handler rabbitmq.MessageHandler, log *zap.Logger) (*rabbitmq.Consumer, error) {
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Topology:    Topology(cfg),
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, handler, log)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return consumer, nil
}

// NewProcessor assembles the worker-side use case that consumes detection requests.
func NewProcessor(
	cfg *config.Config,
	repo port.JobRepository,
	storage port.ArtifactStorage,
	s *shim.Shim,
	msg *Messaging,
	tracker *usecase.Tracker,
	log *zap.Logger,
) *usecase.ProcessDetectionUseCase {
	return usecase.NewProcessDetectionUseCase(
		repo, storage, s,
		ffmpeg.NewProber(cfg.FFprobeBinary, log),
		msg.Status, msg.DLQ,
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		tracker,
		log,
		usecase.ProcessDetectionConfig{MaxRetries: cfg.MaxRetries},
	)
}
