package port

import (
	"context"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
)

// MetadataProbe derives container metadata for a media file. A zero
// duration or fps in the result is an expected degenerate state, not an
// error; only a missing video stream or an unusable container fails.
type MetadataProbe interface {
	Probe(ctx context.Context, videoPath string) (entity.MediaMetadata, error)
}
