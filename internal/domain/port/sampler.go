package port

import (
	"context"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
)

// FrameSampler extracts exactly targetFrames uniformly spaced frame images
// from a video into outputDir. Implementations must reconcile whatever the
// extraction engine actually produced against targetFrames (pad with the
// last frame, truncate excess) and must remove any partial output from
// outputDir before returning an error.
type FrameSampler interface {
	Sample(ctx context.Context, videoPath string, targetFrames int, meta entity.MediaMetadata, outputDir string) (entity.FrameSet, error)
}
