package port

import "context"

// VideoStorage fetches uploaded source clips into a run's workspace.
type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	RemoveVideo(ctx context.Context, objectKey string) error
}
