package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/media-be/internal/jobs"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
)

// AssetStore is the slice of the asset store the ingest path needs
type AssetStore interface {
	Create(ctx context.Context, asset *media.Asset) error
	MarkFailed(ctx context.Context, assetID, errorMsg string) error
}

// JobEnqueuer submits transcode work for uploaded videos
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload jobs.Payload) (*jobs.Job, error)
}

// Upload is one user-submitted file held in memory
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service is the entry point for uploads. Images are processed inline;
// videos are stored raw and handed to the transcode queue.
type Service struct {
	logger  *slog.Logger
	assets  AssetStore
	storage storage.Provider
	queue   JobEnqueuer
}

// NewService creates the ingest service
func NewService(logger *slog.Logger, assets AssetStore, provider storage.Provider, queue JobEnqueuer) *Service {
	return &Service{
		logger:  logger,
		assets:  assets,
		storage: provider,
		queue:   queue,
	}
}

// Process routes an upload to the image or video pipeline by mime type
func (s *Service) Process(ctx context.Context, upload Upload, ownerID string) (*media.Asset, error) {
	if strings.HasPrefix(upload.ContentType, "image/") {
		return s.ProcessImage(ctx, upload, ownerID)
	}
	return s.ProcessVideo(ctx, upload, ownerID)
}

// ProcessImage optimizes the image, derives a thumbnail, uploads both and
// persists the asset directly in READY state. It runs fully inline and
// never touches the job queue.
func (s *Service) ProcessImage(ctx context.Context, upload Upload, ownerID string) (*media.Asset, error) {
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	optimized, err := optimizeImage(upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to optimize image: %w", err)
	}

	thumbnail, err := makeThumbnail(upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail: %w", err)
	}

	primaryUpload, err := s.storage.Upload(ctx, storage.File{
		FileName:    "original.jpg",
		Body:        bytes.NewReader(optimized.Data),
		ContentType: "image/jpeg",
		Size:        int64(len(optimized.Data)),
	}, "images", storage.UploadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	thumbUpload, err := s.storage.Upload(ctx, storage.File{
		FileName:    "thumb.jpg",
		Body:        bytes.NewReader(thumbnail.Data),
		ContentType: "image/jpeg",
		Size:        int64(len(thumbnail.Data)),
	}, "thumbnails", storage.UploadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	now := time.Now().UTC()
	asset := &media.Asset{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Kind:         media.KindImage,
		Status:       media.StatusReady,
		Progress:     100,
		PrimaryURL:   nullString(primaryUpload.URL),
		ThumbnailURL: nullString(thumbUpload.URL),
		Width:        optimized.Width,
		Height:       optimized.Height,
		SizeBytes:    int64(len(optimized.Data)),
		Encoding:     "jpeg",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to persist asset: %w", err)
	}

	s.logger.Info("Image processed",
		slog.String("asset_id", asset.ID),
		slog.Int("width", asset.Width),
		slog.Int("height", asset.Height),
		slog.Int64("size_bytes", asset.SizeBytes),
	)

	return asset, nil
}

// ProcessVideo stores the raw original unmodified, creates a PENDING asset
// and enqueues one transcode job. It returns immediately; the asset is
// finalized asynchronously by the worker.
func (s *Service) ProcessVideo(ctx context.Context, upload Upload, ownerID string) (*media.Asset, error) {
	if err := validateUpload(upload); err != nil {
		return nil, err
	}

	rawUpload, err := s.storage.Upload(ctx, storage.File{
		FileName:    upload.FileName,
		Body:        bytes.NewReader(upload.Data),
		ContentType: upload.ContentType,
		Size:        int64(len(upload.Data)),
	}, "videos/raw", storage.UploadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload raw video: %w", err)
	}

	now := time.Now().UTC()
	asset := &media.Asset{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Kind:      media.KindVideo,
		Status:    media.StatusPending,
		SizeBytes: int64(len(upload.Data)),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to persist asset: %w", err)
	}

	job, err := s.queue.Enqueue(ctx, jobs.Payload{
		AssetID:   asset.ID,
		SourceURL: rawUpload.URL,
		OwnerID:   ownerID,
	})
	if err != nil {
		// Without a job the asset would sit PENDING forever.
		if markErr := s.assets.MarkFailed(ctx, asset.ID, "failed to enqueue transcode job"); markErr != nil {
			s.logger.Error("Failed to mark asset failed after enqueue error",
				slog.String("asset_id", asset.ID),
				slog.Any("error", markErr),
			)
		}
		return nil, fmt.Errorf("failed to enqueue transcode job: %w", err)
	}

	s.logger.Info("Video accepted for transcoding",
		slog.String("asset_id", asset.ID),
		slog.String("job_id", job.JobID),
		slog.Int64("size_bytes", asset.SizeBytes),
	)

	return asset, nil
}

// validateUpload rejects anything that is neither image nor video before
// any work is done
func validateUpload(upload Upload) error {
	isImage := strings.HasPrefix(upload.ContentType, "image/")
	isVideo := strings.HasPrefix(upload.ContentType, "video/")

	if !isImage && !isVideo {
		return media.ErrUnsupportedMediaType
	}

	return nil
}
