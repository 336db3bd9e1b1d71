package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/media-be/internal/ingest"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
)

// Ingestor accepts uploads and routes them by media kind
type Ingestor interface {
	Process(ctx context.Context, upload ingest.Upload, ownerID string) (*media.Asset, error)
}

// AssetReader is the read/delete slice of the asset store used by the API
type AssetReader interface {
	GetByID(ctx context.Context, assetID string) (*media.Asset, error)
	ListAssets(ctx context.Context, filter media.AssetFilter) ([]media.Asset, error)
	Delete(ctx context.Context, assetID string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Ingest  Ingestor
	Assets  AssetReader
	Storage storage.Provider
	// PublicBaseURL is needed to map stored URLs back to object keys
	PublicBaseURL string
}

// MediaHandler handles media-related HTTP requests
type MediaHandler struct {
	logger        *slog.Logger
	ingest        Ingestor
	assets        AssetReader
	storage       storage.Provider
	publicBaseURL string
}

// NewMediaHandler creates a new MediaHandler instance
func NewMediaHandler(deps *Dependencies) *MediaHandler {
	return &MediaHandler{
		logger:        deps.Logger,
		ingest:        deps.Ingest,
		assets:        deps.Assets,
		storage:       deps.Storage,
		publicBaseURL: deps.PublicBaseURL,
	}
}
