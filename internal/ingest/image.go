package ingest

import (
	"bytes"
	"database/sql"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	// maxImageDimension bounds the longest side of the optimized rendition
	maxImageDimension = 1920
	// thumbnailSize is the edge length of the square thumbnail crop
	thumbnailSize = 400

	optimizedQuality = 80
	thumbnailQuality = 70
)

// encodedImage is a JPEG rendition plus its pixel dimensions
type encodedImage struct {
	Data   []byte
	Width  int
	Height int
}

// optimizeImage decodes the source, scales it down to fit within
// maxImageDimension (never enlarging) and re-encodes as JPEG
func optimizeImage(data []byte) (*encodedImage, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Fit(src, maxImageDimension, maxImageDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(optimizedQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	bounds := resized.Bounds()
	return &encodedImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// makeThumbnail produces a center-cropped square JPEG thumbnail
func makeThumbnail(data []byte) (*encodedImage, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fill(src, thumbnailSize, thumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &encodedImage{
		Data:   buf.Bytes(),
		Width:  thumbnailSize,
		Height: thumbnailSize,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
