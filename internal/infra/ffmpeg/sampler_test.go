package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFrames(t *testing.T, dir string, count int) []string {
	t.Helper()
	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		require.NoError(t, os.WriteFile(path, []byte("frame"), 0o644))
		paths = append(paths, path)
	}
	return paths
}

func TestReconcilePadsWithLastFrame(t *testing.T) {
	produced := []string{"frame_0001.png", "frame_0002.png", "frame_0003.png"}

	frames, err := reconcileFrameCount(produced, 5)

	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, "frame_0003.png", frames[2])
	// Padded tail entries are the exact same frame as the last produced one.
	assert.Equal(t, frames[2], frames[3])
	assert.Equal(t, frames[2], frames[4])
}

func TestReconcileTruncatesExcess(t *testing.T) {
	produced := []string{"a.png", "b.png", "c.png", "d.png"}

	frames, err := reconcileFrameCount(produced, 2)

	require.NoError(t, err)
	assert.Equal(t, entity.FrameSet{"a.png", "b.png"}, frames)
}

func TestReconcileExactCount(t *testing.T) {
	produced := []string{"a.png", "b.png"}

	frames, err := reconcileFrameCount(produced, 2)

	require.NoError(t, err)
	assert.Equal(t, entity.FrameSet{"a.png", "b.png"}, frames)
}

func TestReconcileZeroFramesFails(t *testing.T) {
	_, err := reconcileFrameCount(nil, 3)

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrNoFramesProduced)
	assert.Equal(t, entity.ErrorKindIntegrity, entity.KindOf(err))
}

func TestListProducedFramesOrdered(t *testing.T) {
	dir := t.TempDir()
	want := writeFrames(t, dir, 12)

	got, err := listProducedFrames(dir, "png")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSampleRejectsNonPositiveTarget(t *testing.T) {
	sampler := NewSampler("png", zap.NewNop())

	_, err := sampler.Sample(context.Background(), "whatever.mp4", 0, entity.MediaMetadata{}, t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidTargetCount)
	assert.Equal(t, entity.ErrorKindValidation, entity.KindOf(err))
}

func TestSampleRejectsMissingSource(t *testing.T) {
	sampler := NewSampler("png", zap.NewNop())

	_, err := sampler.Sample(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), 10, entity.MediaMetadata{}, t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrSourceNotFound)
}
