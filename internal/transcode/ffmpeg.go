package transcode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Options configures the FFmpeg binding
type Options struct {
	FFmpegPath      string
	FFprobePath     string
	SegmentSeconds  int
	ThumbnailOffset time.Duration
	ThumbnailWidth  int
}

// FFmpeg implements Transcoder by shelling out to ffmpeg/ffprobe
type FFmpeg struct {
	opts   Options
	logger *slog.Logger
}

// NewFFmpeg creates the ffmpeg-backed transcoder
func NewFFmpeg(opts Options, logger *slog.Logger) *FFmpeg {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 10
	}
	if opts.ThumbnailOffset <= 0 {
		opts.ThumbnailOffset = time.Second
	}
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = 400
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FFmpeg{opts: opts, logger: logger}
}

// Probe inspects the input with ffprobe
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	output, err := exec.CommandContext(ctx, f.opts.FFprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(output)
}

// ExtractThumbnail captures one frame at the configured offset, scaled to
// the thumbnail width with the aspect ratio preserved
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-ss", formatOffset(f.opts.ThumbnailOffset),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", f.opts.ThumbnailWidth),
		"-f", "image2",
		"-y", outputPath,
	}

	if out, err := exec.CommandContext(ctx, f.opts.FFmpegPath, args...).CombinedOutput(); err != nil {
		f.logger.Debug("ffmpeg thumbnail output", slog.String("output", string(out)))
		return fmt.Errorf("ffmpeg thumbnail failed: %w", err)
	}

	return nil
}

// Segment transcodes the input into an HLS stream inside outputDir. The
// tool's machine-readable progress output is re-exposed as a percentage
// stream consumed by the worker loop.
func (f *FFmpeg) Segment(ctx context.Context, inputPath, outputDir string) (<-chan int, <-chan error) {
	progressCh := make(chan int)
	errCh := make(chan error, 1)

	go func() {
		defer close(progressCh)

		info, err := f.Probe(ctx, inputPath)
		if err != nil {
			errCh <- err
			return
		}

		manifestPath := filepath.Join(outputDir, ManifestName)
		args := []string{
			"-i", inputPath,
			"-preset", "ultrafast",
			"-start_number", "0",
			"-hls_time", strconv.Itoa(f.opts.SegmentSeconds),
			"-hls_list_size", "0",
			"-f", "hls",
			"-progress", "pipe:1",
			"-nostats",
			"-loglevel", "error",
			"-y", manifestPath,
		}

		cmd := exec.CommandContext(ctx, f.opts.FFmpegPath, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errCh <- fmt.Errorf("ffmpeg stdout pipe: %w", err)
			return
		}

		if err := cmd.Start(); err != nil {
			errCh <- fmt.Errorf("ffmpeg start: %w", err)
			return
		}

		consumeProgress(stdout, info.Duration, func(percent int) {
			select {
			case progressCh <- percent:
			case <-ctx.Done():
			}
		})

		if err := cmd.Wait(); err != nil {
			errCh <- fmt.Errorf("ffmpeg segmenting failed: %w", err)
			return
		}

		errCh <- nil
	}()

	return progressCh, errCh
}

// formatOffset renders a duration as an ffmpeg HH:MM:SS timestamp
func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// parseProbeOutput extracts duration and the first video stream's
// dimensions from ffprobe JSON
func parseProbeOutput(data []byte) (*MediaInfo, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}

	if probe.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", probe.Format.Duration, err)
		}
		info.Duration = time.Duration(seconds * float64(time.Second))
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}

	return info, nil
}

var _ Transcoder = (*FFmpeg)(nil)
