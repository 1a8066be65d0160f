package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/motionlab/movement-analyzer/internal/infra/config"
	"github.com/motionlab/movement-analyzer/internal/infra/email"
	"github.com/motionlab/movement-analyzer/internal/infra/ffmpeg"
	"github.com/motionlab/movement-analyzer/internal/infra/metrics"
	miniostorage "github.com/motionlab/movement-analyzer/internal/infra/minio"
	"github.com/motionlab/movement-analyzer/internal/infra/pose"
	"github.com/motionlab/movement-analyzer/internal/infra/postgres"
	"github.com/motionlab/movement-analyzer/internal/infra/rabbitmq"
	"github.com/motionlab/movement-analyzer/internal/infra/tracing"
	"github.com/motionlab/movement-analyzer/internal/usecase"
	"github.com/motionlab/movement-analyzer/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const migrationsPath = "migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting movement-analyzer worker")

	if tp, err := tracing.Init(ctx, cfg.JaegerEndpoint); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
		log.Warn("migrations not applied", zap.Error(err))
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
	})
	if err != nil {
		log.Fatal("create minio storage", zap.Error(err))
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		log.Fatal("ensure minio buckets", zap.Error(err))
	}

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal("connect to rabbitmq", zap.Error(err))
	}
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	if err != nil {
		log.Fatal("create publisher", zap.Error(err))
	}

	uc := usecase.NewCompareMovementUseCase(
		postgres.NewRunRepository(pool),
		storage,
		ffmpeg.NewProbe(log),
		ffmpeg.NewSampler(cfg.FrameFormat, log),
		pose.NewClient(pose.ClientConfig{
			BaseURL:     cfg.PoseSidecarURL,
			Timeout:     time.Duration(cfg.PoseTimeoutSecs) * time.Second,
			Concurrency: cfg.PoseConcurrencyLimit,
		}, log),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.CompareConfig{
			WorkspaceRoot:        cfg.WorkspaceRoot,
			MaxRetries:           cfg.MaxRetries,
			DefaultTargetFrames:  cfg.DefaultTargetFrames,
			MinTargetFrames:      cfg.MinTargetFrames,
			MaxTargetFrames:      cfg.MaxTargetFrames,
			MaxShortDurationSecs: cfg.MaxShortDurationSecs,
		},
	)

	metricsSrv := metrics.Serve(cfg.MetricsPort, log)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	if err != nil {
		log.Fatal("create consumer", zap.Error(err))
	}
	defer consumer.Close()

	// Blocks until a shutdown signal cancels ctx, then drains in-flight
	// runs before returning.
	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("movement-analyzer worker stopped")
}
