package transcode

import (
	"context"
	"time"
)

// MediaInfo describes a probed media file
type MediaInfo struct {
	Duration time.Duration
	Width    int
	Height   int
}

// Transcoder is the narrow binding to the external codec tool. The state
// machine in the worker only ever talks to this interface, so the native
// tool is swappable without touching pipeline logic.
type Transcoder interface {
	// Probe inspects the input and returns its duration and dimensions.
	Probe(ctx context.Context, inputPath string) (*MediaInfo, error)

	// ExtractThumbnail captures a single frame into outputPath.
	ExtractThumbnail(ctx context.Context, inputPath, outputPath string) error

	// Segment produces a manifest plus media segments in outputDir. The
	// returned channel streams whole percentages and is closed when the
	// tool finishes; the final error (nil on success) arrives on the
	// second channel, which is buffered and never blocks the tool.
	Segment(ctx context.Context, inputPath, outputDir string) (<-chan int, <-chan error)
}

// ManifestName is the fixed name of the stream index file inside a
// segment output directory.
const ManifestName = "playlist.m3u8"
