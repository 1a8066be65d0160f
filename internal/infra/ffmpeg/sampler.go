package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"go.uber.org/zap"
)

// Sampler extracts a fixed number of uniformly spaced frames from a video
// with ffmpeg. The engine's output count is not trusted: a time-based fps
// filter rounds, so the result is reconciled against the requested count
// before it is returned.
type Sampler struct {
	format string
	logger *zap.Logger
}

func NewSampler(format string, logger *zap.Logger) *Sampler {
	return &Sampler{format: format, logger: logger}
}

func (s *Sampler) Sample(ctx context.Context, videoPath string, targetFrames int, meta entity.MediaMetadata, outputDir string) (entity.FrameSet, error) {
	if targetFrames <= 0 {
		return nil, entity.NewValidationError(
			fmt.Sprintf("target frame count %d", targetFrames), entity.ErrInvalidTargetCount)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, entity.NewValidationError(
			fmt.Sprintf("video %s", videoPath), entity.ErrSourceNotFound)
	}

	framePattern := filepath.Join(outputDir, fmt.Sprintf("frame_%%04d.%s", s.format))

	var args []string
	if meta.DurationSeconds <= 0 || meta.FPS <= 0 {
		// Unknown duration makes time-based spreading meaningless; take
		// the first decodable frame and let reconciliation pad it out.
		args = []string{
			"-i", videoPath,
			"-frames:v", "1",
			"-y",
			framePattern,
		}
	} else {
		sampleRate := float64(targetFrames) / meta.DurationSeconds
		args = []string{
			"-i", videoPath,
			"-vf", fmt.Sprintf("fps=%f", sampleRate),
			"-vsync", "vfr",
			"-y",
			framePattern,
		}
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// No orphaned partial output may survive a failed sample.
		s.removePartialOutput(outputDir)
		if ctx.Err() != nil {
			return nil, entity.NewExternalToolError("frame extraction cancelled", ctx.Err())
		}
		return nil, entity.NewExternalToolError(
			fmt.Sprintf("ffmpeg error: %s", string(output)), err)
	}

	produced, err := listProducedFrames(outputDir, s.format)
	if err != nil {
		s.removePartialOutput(outputDir)
		return nil, entity.NewExternalToolError("enumerate extracted frames", err)
	}

	frames, err := reconcileFrameCount(produced, targetFrames)
	if err != nil {
		s.removePartialOutput(outputDir)
		return nil, err
	}

	s.logger.Debug("frames sampled",
		zap.String("video", videoPath),
		zap.Int("produced", len(produced)),
		zap.Int("target", targetFrames),
	)
	return frames, nil
}

// listProducedFrames returns the extraction output in index order. The
// frame_%04d naming makes lexical order the index order.
func listProducedFrames(dir, format string) ([]string, error) {
	frames, err := filepath.Glob(filepath.Join(dir, "*."+format))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	return frames, nil
}

// reconcileFrameCount forces the produced set to exactly targetFrames:
// under-production pads by repeating the last frame (held last known pose),
// over-production drops the tail, and an empty set fails because the
// source is unusable.
func reconcileFrameCount(produced []string, targetFrames int) (entity.FrameSet, error) {
	if len(produced) == 0 {
		return nil, entity.NewIntegrityError(
			fmt.Sprintf("expected %d frames", targetFrames), entity.ErrNoFramesProduced)
	}

	if len(produced) > targetFrames {
		return entity.FrameSet(produced[:targetFrames]), nil
	}

	frames := make(entity.FrameSet, 0, targetFrames)
	frames = append(frames, produced...)
	last := produced[len(produced)-1]
	for len(frames) < targetFrames {
		frames = append(frames, last)
	}
	return frames, nil
}

func (s *Sampler) removePartialOutput(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to remove partial extraction output",
			zap.String("dir", dir), zap.Error(err))
	}
}
