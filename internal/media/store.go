package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store handles all database operations on media assets
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new asset Store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create persists a new asset record
func (s *Store) Create(ctx context.Context, asset *Asset) error {
	query := `
		INSERT INTO media_assets (
			id, owner_id, kind, status, progress,
			primary_url, thumbnail_url, error_message,
			width, height, size_bytes, encoding,
			created_at, updated_at
		) VALUES (
			:id, :owner_id, :kind, :status, :progress,
			:primary_url, :thumbnail_url, :error_message,
			:width, :height, :size_bytes, :encoding,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, asset); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetByID retrieves an asset by its id
func (s *Store) GetByID(ctx context.Context, assetID string) (*Asset, error) {
	var asset Asset
	query := `
		SELECT id, owner_id, kind, status, progress,
		       primary_url, thumbnail_url, error_message,
		       width, height, size_bytes, encoding,
		       created_at, updated_at
		FROM media_assets
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &asset, query, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

// MarkProcessing moves the asset into PROCESSING and resets progress.
// Called at the start of every transcode attempt; the reset is the only
// point where progress may go down.
func (s *Store) MarkProcessing(ctx context.Context, assetID string) error {
	query := `
		UPDATE media_assets
		SET status = $1, progress = 0, error_message = NULL, updated_at = NOW()
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, StatusProcessing, assetID); err != nil {
		return fmt.Errorf("failed to mark asset processing: %w", err)
	}

	return nil
}

// UpdateProgress persists the transcode percentage. The guard keeps the
// stored value non-decreasing even if a stale write arrives late.
func (s *Store) UpdateProgress(ctx context.Context, assetID string, progress int) error {
	query := `
		UPDATE media_assets
		SET progress = $1, updated_at = NOW()
		WHERE id = $2 AND progress <= $1
	`

	if _, err := s.db.ExecContext(ctx, query, progress, assetID); err != nil {
		return fmt.Errorf("failed to update asset progress: %w", err)
	}

	return nil
}

// MarkReady finalizes a successful transcode
func (s *Store) MarkReady(ctx context.Context, assetID, primaryURL, thumbnailURL string) error {
	query := `
		UPDATE media_assets
		SET status = $1, progress = 100,
		    primary_url = $2, thumbnail_url = $3,
		    error_message = NULL, updated_at = NOW()
		WHERE id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, StatusReady, primaryURL, thumbnailURL, assetID); err != nil {
		return fmt.Errorf("failed to mark asset ready: %w", err)
	}

	return nil
}

// MarkFailed records a terminal failure. Progress is left as-is so the
// record shows how far the last attempt got.
func (s *Store) MarkFailed(ctx context.Context, assetID, errorMsg string) error {
	query := `
		UPDATE media_assets
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, StatusFailed, errorMsg, assetID); err != nil {
		return fmt.Errorf("failed to mark asset failed: %w", err)
	}

	return nil
}

// Delete removes the asset record
func (s *Store) Delete(ctx context.Context, assetID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, assetID); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	return nil
}

// ListFailedBefore returns FAILED assets last touched before the cutoff,
// oldest first. Used by the cleanup janitor.
func (s *Store) ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Asset, error) {
	query := `
		SELECT id, owner_id, kind, status, progress,
		       primary_url, thumbnail_url, error_message,
		       width, height, size_bytes, encoding,
		       created_at, updated_at
		FROM media_assets
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	var assets []Asset
	if err := s.db.SelectContext(ctx, &assets, query, StatusFailed, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list failed assets: %w", err)
	}

	return assets, nil
}

// AssetFilter narrows ListAssets results
type AssetFilter struct {
	OwnerID  string
	Kind     string
	Status   string
	PageSize int
	Cursor   *AssetCursor
}

// AssetCursor is a keyset pagination cursor over (created_at, id)
type AssetCursor struct {
	CreatedAt time.Time
	AssetID   string
}

// ListAssets returns up to PageSize+1 assets matching the filter, newest
// first. The extra row lets the caller detect whether more pages exist.
func (s *Store) ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error) {
	query := `
		SELECT id, owner_id, kind, status, progress,
		       primary_url, thumbnail_url, error_message,
		       width, height, size_bytes, encoding,
		       created_at, updated_at
		FROM media_assets
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.AssetID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var assets []Asset
	if err := s.db.SelectContext(ctx, &assets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	return assets, nil
}
