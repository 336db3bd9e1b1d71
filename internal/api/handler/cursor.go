package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/media-be/internal/media"
)

// DecodeAssetCursor parses an opaque pagination cursor. An empty string
// means first page.
func DecodeAssetCursor(cursorStr string) (*media.AssetCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &media.AssetCursor{
		CreatedAt: time.Unix(0, createdAt),
		AssetID:   parts[1],
	}, nil
}

// EncodeAssetCursor renders a cursor pointing just past the given position
func EncodeAssetCursor(cursor *media.AssetCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.AssetID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
