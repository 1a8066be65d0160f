package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"github.com/motionlab/movement-analyzer/internal/domain/port"
	"github.com/motionlab/movement-analyzer/internal/domain/scoring"
	"github.com/motionlab/movement-analyzer/internal/infra/metrics"
	"github.com/motionlab/movement-analyzer/internal/workspace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompareMovementUseCase coordinates one comparison run: probe both clips,
// sample frames, estimate poses, score, and reclaim the run workspace on
// every exit path.
type CompareMovementUseCase struct {
	repo      port.RunRepository
	storage   port.VideoStorage
	probe     port.MetadataProbe
	sampler   port.FrameSampler
	estimator port.PoseEstimator
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       CompareConfig
}

type CompareConfig struct {
	WorkspaceRoot        string
	MaxRetries           int
	DefaultTargetFrames  int
	MinTargetFrames      int
	MaxTargetFrames      int
	MaxShortDurationSecs float64
}

func NewCompareMovementUseCase(
	repo port.RunRepository,
	storage port.VideoStorage,
	probe port.MetadataProbe,
	sampler port.FrameSampler,
	estimator port.PoseEstimator,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg CompareConfig,
) *CompareMovementUseCase {
	return &CompareMovementUseCase{
		repo:      repo,
		storage:   storage,
		probe:     probe,
		sampler:   sampler,
		estimator: estimator,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute handles one comparison.request message. A nil return acks the
// message; an error return nacks it back onto the queue for a retry.
func (uc *CompareMovementUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CompareMovementUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ComparisonRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	msg.TargetFrames = uc.clampTargetFrames(msg.TargetFrames)

	span.SetAttributes(
		attribute.String("run.id", msg.RunID.String()),
		attribute.String("run.short_video_key", msg.ShortVideoKey),
		attribute.String("run.reference_video_key", msg.ReferenceVideoKey),
		attribute.Int("run.target_frames", msg.TargetFrames),
	)

	log := uc.logger.With(
		zap.String("run_id", msg.RunID.String()),
		zap.String("short_video_key", msg.ShortVideoKey),
		zap.String("reference_video_key", msg.ReferenceVideoKey),
	)

	run, err := uc.repo.FindByID(ctx, msg.RunID)
	if err != nil {
		run = entity.NewRun(msg.UserID, msg.ShortVideoKey, msg.ReferenceVideoKey, msg.TargetFrames, uc.cfg.MaxRetries)
		run.ID = msg.RunID
		if err := uc.repo.Create(ctx, run); err != nil {
			log.Error("failed to create run record", zap.Error(err))
			return fmt.Errorf("create run: %w", err)
		}
	}

	if !run.CanRetry() {
		log.Warn("run exhausted retries, sending to DLQ")
		uc.handlePermanentFailure(ctx, run, msg, rawMsg, "max retries exceeded")
		return nil
	}

	run.BeginAttempt()
	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to update run attempt", zap.Error(err))
		return fmt.Errorf("update run: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	ws, err := workspace.New(uc.cfg.WorkspaceRoot, run.ID)
	if err != nil {
		resErr := entity.NewResourceError("create run workspace", err)
		run.MarkFailed(entity.ErrorKindResource, resErr.Error())
		_ = uc.repo.Update(ctx, run)
		uc.handlePermanentFailure(ctx, run, msg, rawMsg, resErr.Error())
		return nil
	}

	pipelineErr := uc.runPipeline(ctx, run, ws, msg, log)

	terminal := pipelineErr == nil || !entity.IsRetryable(pipelineErr) || !run.CanRetry()
	uc.cleanup(ctx, run, ws, msg, terminal, log)

	if pipelineErr == nil {
		metrics.RunsProcessedTotal.WithLabelValues("scored").Inc()
		metrics.RunStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
		metrics.SimilarityScore.Observe(run.Score)
		uc.publishStatus(ctx, run, log)
		log.Info("run scored",
			zap.Float64("score", run.Score),
			zap.String("analysis", run.AnalysisText),
		)
		return nil
	}

	if terminal {
		uc.handlePermanentFailure(ctx, run, msg, rawMsg, pipelineErr.Error())
		return nil
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(run.Attempt)).Inc()
	uc.publishStatus(ctx, run, log)
	return fmt.Errorf("retryable failure (attempt %d/%d): %w", run.Attempt, run.MaxAttempts, pipelineErr)
}

// clampTargetFrames is the input-validation boundary: anything outside the
// configured [min,max] window falls back to the default.
func (uc *CompareMovementUseCase) clampTargetFrames(target int) int {
	if target < uc.cfg.MinTargetFrames || target > uc.cfg.MaxTargetFrames {
		return uc.cfg.DefaultTargetFrames
	}
	return target
}

// runPipeline drives the run state machine Created -> Scored. On error the
// run is marked Failed with the error's classification and the error is
// returned for retry-policy handling; cleanup stays with the caller.
func (uc *CompareMovementUseCase) runPipeline(ctx context.Context, run *entity.Run, ws *workspace.Workspace, msg entity.ComparisonRequestMessage, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")

	// Download both source clips into the workspace.
	dlStart := time.Now()
	dlCtx, dlSpan := tracer.Start(ctx, "download_videos")
	shortPath := ws.Path("short_input.mp4")
	refPath := ws.Path("reference_input.mp4")
	g, gctx := errgroup.WithContext(dlCtx)
	g.Go(func() error {
		if err := uc.storage.DownloadVideo(gctx, msg.ShortVideoKey, shortPath); err != nil {
			return entity.NewExternalToolError(fmt.Sprintf("download %s", msg.ShortVideoKey), err)
		}
		return nil
	})
	g.Go(func() error {
		if err := uc.storage.DownloadVideo(gctx, msg.ReferenceVideoKey, refPath); err != nil {
			return entity.NewExternalToolError(fmt.Sprintf("download %s", msg.ReferenceVideoKey), err)
		}
		return nil
	})
	err := g.Wait()
	dlSpan.End()
	if err != nil {
		return uc.fail(ctx, run, err, log)
	}
	metrics.RunStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe both clips and gate on the short clip's duration before any
	// extraction work starts. This is a product constraint, so it fails
	// the run terminally rather than retrying.
	probeStart := time.Now()
	probeCtx, probeSpan := tracer.Start(ctx, "probe_metadata")
	var shortMeta, refMeta entity.MediaMetadata
	g, gctx = errgroup.WithContext(probeCtx)
	g.Go(func() error {
		m, err := uc.probe.Probe(gctx, shortPath)
		if err != nil {
			return err
		}
		shortMeta = m
		return nil
	})
	g.Go(func() error {
		m, err := uc.probe.Probe(gctx, refPath)
		if err != nil {
			return err
		}
		refMeta = m
		return nil
	})
	err = g.Wait()
	probeSpan.End()
	if err != nil {
		return uc.fail(ctx, run, err, log)
	}
	if uc.cfg.MaxShortDurationSecs > 0 && shortMeta.DurationSeconds > uc.cfg.MaxShortDurationSecs {
		err := entity.NewValidationError(
			fmt.Sprintf("short clip runs %.1fs, limit is %.1fs",
				shortMeta.DurationSeconds, uc.cfg.MaxShortDurationSecs),
			entity.ErrShortDurationLimit)
		return uc.fail(ctx, run, err, log)
	}
	if err := run.MarkMetadataValidated(); err != nil {
		return uc.fail(ctx, run, entity.NewIntegrityError("advance run state", err), log)
	}
	metrics.RunStageDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())

	// Sample both clips; the two extractions are independent.
	sampleStart := time.Now()
	sampleCtx, sampleSpan := tracer.Start(ctx, "sample_frames")
	var shortFrames, refFrames entity.FrameSet
	g, gctx = errgroup.WithContext(sampleCtx)
	g.Go(func() error {
		dir, err := ws.Dir("frames_short")
		if err != nil {
			return entity.NewResourceError("create short frames dir", err)
		}
		frames, err := uc.sampler.Sample(gctx, shortPath, msg.TargetFrames, shortMeta, dir)
		if err != nil {
			return err
		}
		shortFrames = frames
		return nil
	})
	g.Go(func() error {
		dir, err := ws.Dir("frames_reference")
		if err != nil {
			return entity.NewResourceError("create reference frames dir", err)
		}
		frames, err := uc.sampler.Sample(gctx, refPath, msg.TargetFrames, refMeta, dir)
		if err != nil {
			return err
		}
		refFrames = frames
		return nil
	})
	err = g.Wait()
	sampleSpan.End()
	if err != nil {
		return uc.fail(ctx, run, err, log)
	}
	if err := run.MarkFramesExtracted(); err != nil {
		return uc.fail(ctx, run, entity.NewIntegrityError("advance run state", err), log)
	}
	metrics.FramesSampledTotal.Add(float64(len(shortFrames) + len(refFrames)))
	metrics.RunStageDuration.WithLabelValues("sample").Observe(time.Since(sampleStart).Seconds())

	// Estimate poses for every frame of both sets, preserving index order
	// within each video. The two videos have no required relative order.
	poseStart := time.Now()
	poseCtx, poseSpan := tracer.Start(ctx, "estimate_poses")
	var shortSeq, refSeq entity.LandmarkSequence
	g, gctx = errgroup.WithContext(poseCtx)
	g.Go(func() error {
		seq, err := uc.estimateSequence(gctx, shortFrames, shortMeta, "short", log)
		if err != nil {
			return err
		}
		shortSeq = seq
		return nil
	})
	g.Go(func() error {
		seq, err := uc.estimateSequence(gctx, refFrames, refMeta, "reference", log)
		if err != nil {
			return err
		}
		refSeq = seq
		return nil
	})
	err = g.Wait()
	poseSpan.End()
	if err != nil {
		return uc.fail(ctx, run, err, log)
	}
	if len(shortSeq) != msg.TargetFrames || len(refSeq) != msg.TargetFrames {
		err := entity.NewIntegrityError(
			fmt.Sprintf("expected %d landmarks per video, got %d and %d",
				msg.TargetFrames, len(shortSeq), len(refSeq)),
			entity.ErrSequenceLengthBroken)
		return uc.fail(ctx, run, err, log)
	}
	if err := run.MarkPosesEstimated(); err != nil {
		return uc.fail(ctx, run, entity.NewIntegrityError("advance run state", err), log)
	}
	metrics.RunStageDuration.WithLabelValues("pose").Observe(time.Since(poseStart).Seconds())

	// Score. Pure computation, does not fail.
	_, scoreSpan := tracer.Start(ctx, "score")
	result := scoring.Score(shortSeq, refSeq, msg.TargetFrames)
	scoreSpan.End()

	if err := run.MarkScored(result); err != nil {
		return uc.fail(ctx, run, entity.NewIntegrityError("advance run state", err), log)
	}
	if err := uc.repo.Update(ctx, run); err != nil {
		log.Error("failed to persist scored run", zap.Error(err))
	}
	return nil
}

// estimateSequence runs one pose session over a frame set. The session is
// released on every exit path, including mid-batch failure.
func (uc *CompareMovementUseCase) estimateSequence(ctx context.Context, frames entity.FrameSet, meta entity.MediaMetadata, role string, log *zap.Logger) (entity.LandmarkSequence, error) {
	session, err := uc.estimator.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to close pose session", zap.String("video", role), zap.Error(err))
		}
	}()

	seq := make(entity.LandmarkSequence, len(frames))
	detected := 0
	for i, framePath := range frames {
		set, err := session.EstimatePose(ctx, framePath, meta.Width, meta.Height)
		if err != nil {
			return nil, err
		}
		seq[i] = set
		if set != nil {
			detected++
		}
	}

	metrics.PosesDetectedTotal.WithLabelValues(role).Add(float64(detected))
	log.Debug("pose estimation finished",
		zap.String("video", role),
		zap.Int("frames", len(frames)),
		zap.Int("detected", detected),
	)
	return seq, nil
}

// fail records the error on the run and hands it back for retry handling.
func (uc *CompareMovementUseCase) fail(ctx context.Context, run *entity.Run, err error, log *zap.Logger) error {
	run.MarkFailed(entity.KindOf(err), err.Error())
	if uerr := uc.repo.Update(ctx, run); uerr != nil {
		log.Error("failed to persist run failure", zap.Error(uerr))
	}
	return err
}

// cleanup reclaims the run workspace unconditionally, and the uploaded
// source objects once the run is terminal. Cleanup errors are logged and
// never override the primary outcome.
func (uc *CompareMovementUseCase) cleanup(ctx context.Context, run *entity.Run, ws *workspace.Workspace, msg entity.ComparisonRequestMessage, terminal bool, log *zap.Logger) {
	cctx := context.WithoutCancel(ctx)

	if err := ws.Remove(); err != nil {
		log.Warn("workspace cleanup failed", zap.Error(err))
	}

	if !terminal {
		return
	}

	for _, key := range []string{msg.ShortVideoKey, msg.ReferenceVideoKey} {
		if err := uc.storage.RemoveVideo(cctx, key); err != nil {
			log.Warn("failed to remove uploaded source", zap.String("key", key), zap.Error(err))
		}
	}

	if err := run.MarkCleaned(); err != nil {
		log.Warn("failed to mark run cleaned", zap.Error(err))
		return
	}
	if err := uc.repo.Update(cctx, run); err != nil {
		log.Warn("failed to persist cleaned run", zap.Error(err))
	}
}

func (uc *CompareMovementUseCase) handlePermanentFailure(ctx context.Context, run *entity.Run, msg entity.ComparisonRequestMessage, rawMsg []byte, errMsg string) {
	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, run, uc.logger)

	metrics.RunsProcessedTotal.WithLabelValues("failed").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, run.ID.String(), msg.ShortVideoKey, errMsg)
	}
}

func (uc *CompareMovementUseCase) publishStatus(ctx context.Context, run *entity.Run, log *zap.Logger) {
	statusMsg := entity.ComparisonStatusMessage{
		RunID:        run.ID,
		UserID:       run.UserID,
		State:        run.State,
		Score:        run.Score,
		AnalysisText: run.AnalysisText,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		Attempt:      run.Attempt,
		MaxAttempts:  run.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
