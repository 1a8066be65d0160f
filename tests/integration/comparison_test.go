package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"github.com/motionlab/movement-analyzer/internal/infra/email"
	"github.com/motionlab/movement-analyzer/internal/infra/ffmpeg"
	miniostorage "github.com/motionlab/movement-analyzer/internal/infra/minio"
	"github.com/motionlab/movement-analyzer/internal/infra/pose"
	"github.com/motionlab/movement-analyzer/internal/infra/postgres"
	"github.com/motionlab/movement-analyzer/internal/infra/rabbitmq"
	"github.com/motionlab/movement-analyzer/internal/usecase"
	"github.com/motionlab/movement-analyzer/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

const (
	exchange    = "motionlab.comparison"
	requestKey  = "comparison.request"
	statusQueue = "comparison.status"
	dlqQueue    = "comparison.request.dlq"
)

// startPoseSidecar serves the pose sidecar protocol with a fixed landmark
// set, so the pipeline can be exercised end to end without a model.
func startPoseSidecar(t *testing.T) *httptest.Server {
	t.Helper()

	landmarks := make([]entity.Landmark, entity.PoseLandmarkCount)
	for j := range landmarks {
		landmarks[j] = entity.Landmark{
			X:          0.5 + float64(j)*0.005,
			Y:          0.5,
			Z:          0.05,
			Visibility: 0.95,
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"session_id": uuid.NewString()})
	})
	mux.HandleFunc("POST /v1/sessions/{id}/detect", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"detected":  true,
			"landmarks": landmarks,
		})
	})
	mux.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testEnv is a full worker stack on throwaway containers plus a stubbed
// pose sidecar.
type testEnv struct {
	pool        *pgxpool.Pool
	minioClient *miniogo.Client
	rmqConn     *amqp.Connection
}

func startEnv(t *testing.T, ctx context.Context) *testEnv {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("runs"),
		tcpostgres.WithUsername("run_user"),
		tcpostgres.WithPassword("run_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UseSSL:       false,
		UploadBucket: "uploads",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqConn.Close() })

	pub, err := rabbitmq.NewPublisher(rmqConn, exchange)
	require.NoError(t, err)

	sidecar := startPoseSidecar(t)
	log, err := logger.New("debug")
	require.NoError(t, err)

	uc := usecase.NewCompareMovementUseCase(
		postgres.NewRunRepository(pool),
		storage,
		ffmpeg.NewProbe(log),
		ffmpeg.NewSampler("png", log),
		pose.NewClient(pose.ClientConfig{
			BaseURL:     sidecar.URL,
			Timeout:     10 * time.Second,
			Concurrency: 1,
		}, log),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.CompareConfig{
			WorkspaceRoot:        t.TempDir(),
			MaxRetries:           3,
			DefaultTargetFrames:  30,
			MinTargetFrames:      10,
			MaxTargetFrames:      60,
			MaxShortDurationSecs: 5,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "comparison.request",
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go func() { _ = consumer.Start(consumerCtx) }()
	time.Sleep(500 * time.Millisecond)

	return &testEnv{
		pool:        pool,
		minioClient: minioClient,
		rmqConn:     rmqConn,
	}
}

func (e *testEnv) publishRequest(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	ch, err := e.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	err = ch.PublishWithContext(ctx, exchange, requestKey, false, false,
		amqp.Publishing{ContentType: "application/json", Body: body})
	require.NoError(t, err)
}

func TestCompareMovementEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Identical clips through a deterministic detector must score 100.
	testVideoPath := filepath.Join("..", "testdata", "test.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: ffmpeg -f lavfi -i testsrc=duration=2:size=320x240:rate=10 -c:v libx264 -pix_fmt yuv420p tests/testdata/test.mp4")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := startEnv(t, ctx)

	shortKey := "testuser/short.mp4"
	referenceKey := "testuser/reference.mp4"
	for _, key := range []string{shortKey, referenceKey} {
		_, err := env.minioClient.FPutObject(ctx, "uploads", key, testVideoPath, miniogo.PutObjectOptions{
			ContentType: "video/mp4",
		})
		require.NoError(t, err)
	}

	runID := uuid.New()
	body, err := json.Marshal(entity.ComparisonRequestMessage{
		RunID:             runID,
		UserID:            "testuser",
		ShortVideoKey:     shortKey,
		ReferenceVideoKey: referenceKey,
		TargetFrames:      20,
		UserEmail:         "test@test.local",
	})
	require.NoError(t, err)
	env.publishRequest(t, ctx, body)

	statusCh, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	var status entity.ComparisonStatusMessage
	select {
	case delivery := <-statusMsgs:
		require.NoError(t, json.Unmarshal(delivery.Body, &status))
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	assert.Equal(t, runID, status.RunID)
	assert.Equal(t, entity.RunStateCleaned, status.State)
	assert.Equal(t, 100.0, status.Score)
	assert.NotEmpty(t, status.AnalysisText)

	var dbState string
	var dbScore float64
	err = env.pool.QueryRow(ctx,
		"SELECT state, score FROM comparison_runs WHERE id=$1", runID,
	).Scan(&dbState, &dbScore)
	require.NoError(t, err)
	assert.Equal(t, "CLEANED", dbState)
	assert.Equal(t, 100.0, dbScore)

	// Uploaded sources are reclaimed after a terminal run.
	_, err = env.minioClient.StatObject(ctx, "uploads", shortKey, miniogo.StatObjectOptions{})
	assert.Error(t, err, "short clip should be removed after the run")
}

func TestCompareMovementMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env := startEnv(t, ctx)

	env.publishRequest(t, ctx, []byte(`{invalid json`))

	// The handler acks the malformed message and parks a copy in the DLQ.
	require.Eventually(t, func() bool {
		ch, err := env.rmqConn.Channel()
		if err != nil {
			return false
		}
		defer ch.Close()
		msg, ok, err := ch.Get(dlqQueue, true)
		if err != nil || !ok {
			return false
		}
		assert.Equal(t, `{invalid json`, string(msg.Body))
		reason, _ := msg.Headers["x-dlq-reason"].(string)
		assert.Contains(t, reason, "unmarshal_error")
		return true
	}, 30*time.Second, time.Second)
}
