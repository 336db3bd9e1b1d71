package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/media-be/internal/jobs"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
	"github.com/cuongbtq/media-be/internal/transcode"
)

const (
	inputFileName     = "input.mp4"
	thumbnailFileName = "thumb.jpg"

	// progressStep is the minimum percentage delta between persisted
	// progress updates
	progressStep = 5
)

// AssetWriter is the slice of the asset store the pipeline writes to
type AssetWriter interface {
	MarkProcessing(ctx context.Context, assetID string) error
	UpdateProgress(ctx context.Context, assetID string, progress int) error
	MarkReady(ctx context.Context, assetID, primaryURL, thumbnailURL string) error
	MarkFailed(ctx context.Context, assetID, errorMsg string) error
}

// StepTimeouts caps each pipeline step individually so a single hung
// external tool or transfer cannot hold a lease forever
type StepTimeouts struct {
	Download  time.Duration
	Thumbnail time.Duration
	Segment   time.Duration
	Upload    time.Duration
}

// Pipeline runs the transcode steps for one job: download the raw source,
// extract a thumbnail, segment into an HLS rendition, upload the artifacts
// and finalize the asset. Each job gets its own workspace directory keyed
// by asset id, reset at the start and removed unconditionally at the end.
type Pipeline struct {
	logger     *slog.Logger
	assets     AssetWriter
	storage    storage.Provider
	transcoder transcode.Transcoder
	httpClient *http.Client
	workRoot   string
	timeouts   StepTimeouts
}

// NewPipeline creates the pipeline. A nil httpClient falls back to a
// client with no overall timeout; the download step timeout still applies.
func NewPipeline(
	logger *slog.Logger,
	assets AssetWriter,
	provider storage.Provider,
	transcoder transcode.Transcoder,
	httpClient *http.Client,
	workRoot string,
	timeouts StepTimeouts,
) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Pipeline{
		logger:     logger,
		assets:     assets,
		storage:    provider,
		transcoder: transcoder,
		httpClient: httpClient,
		workRoot:   workRoot,
		timeouts:   timeouts,
	}
}

// Run executes the full pipeline for a leased job. Progress writes to the
// asset store are best-effort; step failures are returned for the queue's
// retry policy to handle.
func (p *Pipeline) Run(ctx context.Context, job *jobs.Job) error {
	workspace := filepath.Join(p.workRoot, job.AssetID)

	// a retry of the same asset must start from a clean slate
	if err := os.RemoveAll(workspace); err != nil {
		return &media.TransientError{Op: "workspace reset", Err: err}
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return &media.TransientError{Op: "workspace create", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			p.logger.Error("Failed to remove workspace",
				slog.String("asset_id", job.AssetID),
				slog.Any("error", err),
			)
		}
	}()

	if err := p.assets.MarkProcessing(ctx, job.AssetID); err != nil {
		p.logger.Warn("Failed to mark asset processing",
			slog.String("asset_id", job.AssetID),
			slog.Any("error", err),
		)
	}

	inputPath := filepath.Join(workspace, inputFileName)
	if err := p.download(ctx, job.SourceURL, inputPath); err != nil {
		return &media.TransientError{Op: "download source", Err: err}
	}

	thumbPath := filepath.Join(workspace, thumbnailFileName)
	if err := p.extractThumbnail(ctx, inputPath, thumbPath); err != nil {
		return &media.CodecError{Stage: "thumbnail", Err: err}
	}

	if err := p.segment(ctx, job.AssetID, inputPath, workspace); err != nil {
		return &media.CodecError{Stage: "segment", Err: err}
	}

	manifestURL, thumbURL, err := p.uploadArtifacts(ctx, job.AssetID, workspace)
	if err != nil {
		return &media.TransientError{Op: "upload artifacts", Err: err}
	}

	if err := p.assets.MarkReady(ctx, job.AssetID, manifestURL, thumbURL); err != nil {
		return &media.TransientError{Op: "finalize asset", Err: err}
	}

	p.logger.Info("Transcode finished",
		slog.String("job_id", job.JobID),
		slog.String("asset_id", job.AssetID),
		slog.String("manifest_url", manifestURL),
	)

	return nil
}

// download streams the raw source into the workspace
func (p *Pipeline) download(ctx context.Context, sourceURL, destPath string) error {
	ctx, cancel := p.stepContext(ctx, p.timeouts.Download)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching source", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

func (p *Pipeline) extractThumbnail(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := p.stepContext(ctx, p.timeouts.Thumbnail)
	defer cancel()

	return p.transcoder.ExtractThumbnail(ctx, inputPath, outputPath)
}

// segment runs the HLS segmenter and persists throttled progress. Progress
// store failures are logged and swallowed so a flaky database cannot kill
// an otherwise healthy transcode.
func (p *Pipeline) segment(ctx context.Context, assetID, inputPath, outputDir string) error {
	ctx, cancel := p.stepContext(ctx, p.timeouts.Segment)
	defer cancel()

	progressCh, errCh := p.transcoder.Segment(ctx, inputPath, outputDir)

	lastPersisted := 0
	for percent := range progressCh {
		if percent < 100 && percent-lastPersisted < progressStep {
			continue
		}
		lastPersisted = percent

		if err := p.assets.UpdateProgress(ctx, assetID, percent); err != nil {
			p.logger.Warn("Failed to persist progress",
				slog.String("asset_id", assetID),
				slog.Int("percent", percent),
				slog.Any("error", err),
			)
		}
	}

	return <-errCh
}

// uploadArtifacts pushes every produced file except the raw input to the
// object store. Segment and manifest names are preserved so the relative
// references inside the manifest keep working; the thumbnail gets a
// deterministic per-asset name. Keys depend only on the asset id, so a
// retried upload overwrites rather than duplicates.
func (p *Pipeline) uploadArtifacts(ctx context.Context, assetID, workspace string) (manifestURL, thumbURL string, err error) {
	ctx, cancel := p.stepContext(ctx, p.timeouts.Upload)
	defer cancel()

	entries, err := os.ReadDir(workspace)
	if err != nil {
		return "", "", err
	}

	videoFolder := "videos/" + assetID

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == inputFileName {
			continue
		}

		path := filepath.Join(workspace, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return "", "", err
		}

		f, err := os.Open(path)
		if err != nil {
			return "", "", err
		}

		var (
			folder   = videoFolder
			fileName = entry.Name()
		)
		if entry.Name() == thumbnailFileName {
			folder = "thumbnails"
			fileName = assetID + "-thumb.jpg"
		}

		result, err := p.storage.Upload(ctx, storage.File{
			FileName:    fileName,
			Body:        f,
			ContentType: artifactContentType(entry.Name()),
			Size:        info.Size(),
		}, folder, storage.UploadOptions{PreserveFileName: true})
		f.Close()
		if err != nil {
			return "", "", fmt.Errorf("upload %s: %w", entry.Name(), err)
		}

		switch entry.Name() {
		case transcode.ManifestName:
			manifestURL = result.URL
		case thumbnailFileName:
			thumbURL = result.URL
		}
	}

	if manifestURL == "" {
		return "", "", fmt.Errorf("segmenter produced no %s", transcode.ManifestName)
	}
	if thumbURL == "" {
		return "", "", fmt.Errorf("no thumbnail in workspace")
	}

	return manifestURL, thumbURL, nil
}

func (p *Pipeline) stepContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func artifactContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/MP2T"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
