package port

import (
	"context"

	"github.com/motionlab/movement-analyzer/internal/domain/entity"
)

// PoseEstimator opens inference sessions against the pose model. One
// session is reused across a whole frame batch and must be closed on
// every exit path, including mid-batch failure.
type PoseEstimator interface {
	OpenSession(ctx context.Context) (PoseSession, error)
}

// PoseSession estimates landmarks for individual frames. EstimatePose
// returns (nil, nil) when the frame contains no detectable pose; the nil
// set must keep its frame index in the caller's sequence.
type PoseSession interface {
	EstimatePose(ctx context.Context, framePath string, width, height int) (*entity.LandmarkSet, error)
	Close(ctx context.Context) error
}
