package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/media-be/internal/api/dto"
	"github.com/cuongbtq/media-be/internal/ingest"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxUploadBytes bounds in-memory uploads
	maxUploadBytes = 512 << 20

	signedURLExpiry = 15 * time.Minute
)

// UploadMedia handles POST /api/v1/media
// Accepts a multipart upload; images return READY, videos return PENDING
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	ownerID := c.GetHeader("X-User-ID")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "X-User-ID header is required",
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "multipart field 'file' is required",
		})
		return
	}

	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "file too large",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload",
		})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload",
		})
		return
	}

	asset, err := h.ingest.Process(c.Request.Context(), ingest.Upload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, ownerID)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedMediaType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "only image and video uploads are supported",
			})
			return
		}

		h.logger.Error("Failed to process upload",
			slog.String("owner_id", ownerID),
			slog.String("file_name", fileHeader.Filename),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process upload",
		})
		return
	}

	status := http.StatusCreated
	if asset.Status == media.StatusPending {
		// transcoding continues asynchronously
		status = http.StatusAccepted
	}

	c.JSON(status, assetToDTO(asset))
}

// GetMedia handles GET /api/v1/media/:asset_id
func (h *MediaHandler) GetMedia(c *gin.Context) {
	assetID := c.Param("asset_id")
	if _, err := uuid.Parse(assetID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "asset_id must be a valid UUID",
		})
		return
	}

	asset, err := h.assets.GetByID(c.Request.Context(), assetID)
	if err != nil {
		if errors.Is(err, media.ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "asset not found",
			})
			return
		}

		h.logger.Error("Failed to get asset", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get asset",
		})
		return
	}

	c.JSON(http.StatusOK, assetToDTO(asset))
}

// ListMedia handles GET /api/v1/media
// Lists assets with optional filtering and keyset pagination
func (h *MediaHandler) ListMedia(c *gin.Context) {
	var req dto.ListMediaRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeAssetCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	assets, err := h.assets.ListAssets(c.Request.Context(), media.AssetFilter{
		OwnerID:  req.OwnerID,
		Kind:     req.Kind,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list assets", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list assets",
		})
		return
	}

	resp := dto.ListMediaResponse{Assets: []dto.MediaAssetDTO{}}

	// the store returns one extra row to signal another page
	if len(assets) > req.PageSize {
		assets = assets[:req.PageSize]
		last := assets[len(assets)-1]
		resp.NextCursor = EncodeAssetCursor(&media.AssetCursor{
			CreatedAt: last.CreatedAt,
			AssetID:   last.ID,
		})
	}

	for i := range assets {
		resp.Assets = append(resp.Assets, assetToDTO(&assets[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// DownloadMedia handles GET /api/v1/media/:asset_id/download
// Returns a short-lived signed URL for the primary artifact
func (h *MediaHandler) DownloadMedia(c *gin.Context) {
	assetID := c.Param("asset_id")
	if _, err := uuid.Parse(assetID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "asset_id must be a valid UUID",
		})
		return
	}

	asset, err := h.assets.GetByID(c.Request.Context(), assetID)
	if err != nil {
		if errors.Is(err, media.ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "asset not found",
			})
			return
		}

		h.logger.Error("Failed to get asset", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get asset",
		})
		return
	}

	if asset.Status != media.StatusReady || !asset.PrimaryURL.Valid {
		c.JSON(http.StatusConflict, gin.H{
			"error": "asset is not ready for download",
		})
		return
	}

	key := storage.KeyFromURL(h.publicBaseURL, asset.PrimaryURL.String)
	signed, err := h.storage.SignedURL(c.Request.Context(), key, signedURLExpiry)
	if err != nil {
		h.logger.Error("Failed to sign download URL",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to sign download URL",
		})
		return
	}

	c.JSON(http.StatusOK, dto.DownloadResponse{
		URL:       signed,
		ExpiresIn: int(signedURLExpiry.Seconds()),
	})
}

// DeleteMedia handles DELETE /api/v1/media/:asset_id
// Removes the asset row and best-effort deletes its stored artifacts
func (h *MediaHandler) DeleteMedia(c *gin.Context) {
	assetID := c.Param("asset_id")
	if _, err := uuid.Parse(assetID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "asset_id must be a valid UUID",
		})
		return
	}

	asset, err := h.assets.GetByID(c.Request.Context(), assetID)
	if err != nil {
		if errors.Is(err, media.ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "asset not found",
			})
			return
		}

		h.logger.Error("Failed to get asset", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete asset",
		})
		return
	}

	for _, url := range []string{asset.PrimaryURL.String, asset.ThumbnailURL.String} {
		if url == "" {
			continue
		}
		key := storage.KeyFromURL(h.publicBaseURL, url)
		if err := h.storage.Delete(c.Request.Context(), key); err != nil {
			h.logger.Warn("Failed to delete stored object",
				slog.String("asset_id", assetID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := h.assets.Delete(c.Request.Context(), assetID); err != nil {
		h.logger.Error("Failed to delete asset", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete asset",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": assetID,
	})
}

func assetToDTO(asset *media.Asset) dto.MediaAssetDTO {
	return dto.MediaAssetDTO{
		ID:           asset.ID,
		OwnerID:      asset.OwnerID,
		Kind:         asset.Kind,
		Status:       asset.Status,
		Progress:     asset.Progress,
		PrimaryURL:   asset.PrimaryURL.String,
		ThumbnailURL: asset.ThumbnailURL.String,
		Error:        asset.ErrorMessage.String,
		Width:        asset.Width,
		Height:       asset.Height,
		SizeBytes:    asset.SizeBytes,
		Encoding:     asset.Encoding,
		CreatedAt:    asset.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    asset.UpdatedAt.Format(time.RFC3339),
	}
}
