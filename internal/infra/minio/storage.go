// Package minio fetches uploaded source clips into run workspaces and
// reclaims them once a run is terminal.
package minio

import (
	"context"
	"fmt"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
}

type Storage struct {
	client       *miniogo.Client
	uploadBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Storage{client: client, uploadBucket: cfg.UploadBucket}, nil
}

// EnsureBuckets creates the uploads bucket if a fresh deployment does not
// have it yet.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.uploadBucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.uploadBucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.uploadBucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.uploadBucket, err)
	}
	return nil
}

// DownloadVideo copies one uploaded clip to destPath inside the caller's
// workspace.
func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	if err := s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", objectKey, err)
	}
	return nil
}

// RemoveVideo deletes an uploaded source clip once its run has finished.
func (s *Storage) RemoveVideo(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.uploadBucket, objectKey, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", objectKey, err)
	}
	return nil
}
