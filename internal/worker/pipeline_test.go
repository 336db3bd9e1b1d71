package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-be/internal/jobs"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
	"github.com/cuongbtq/media-be/internal/transcode"
)

type fakeAssetWriter struct {
	mu          sync.Mutex
	byID        map[string]*media.Asset
	processing  []string
	progress    map[string][]int
	ready       map[string][2]string
	failed      map[string]string
	progressErr error
}

func newFakeAssetWriter() *fakeAssetWriter {
	return &fakeAssetWriter{
		byID:     make(map[string]*media.Asset),
		progress: make(map[string][]int),
		ready:    make(map[string][2]string),
		failed:   make(map[string]string),
	}
}

func (f *fakeAssetWriter) GetByID(_ context.Context, assetID string) (*media.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset, ok := f.byID[assetID]
	if !ok {
		return nil, media.ErrAssetNotFound
	}
	copied := *asset
	return &copied, nil
}

func (f *fakeAssetWriter) MarkProcessing(_ context.Context, assetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = append(f.processing, assetID)
	return nil
}

func (f *fakeAssetWriter) UpdateProgress(_ context.Context, assetID string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	f.progress[assetID] = append(f.progress[assetID], progress)
	return nil
}

func (f *fakeAssetWriter) MarkReady(_ context.Context, assetID, primaryURL, thumbnailURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready[assetID] = [2]string{primaryURL, thumbnailURL}
	return nil
}

func (f *fakeAssetWriter) MarkFailed(_ context.Context, assetID, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[assetID] = errorMsg
	if asset, ok := f.byID[assetID]; ok {
		asset.Status = media.StatusFailed
	}
	return nil
}

type uploadedObject struct {
	FileName    string
	Folder      string
	ContentType string
	Preserve    bool
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   []uploadedObject
	uploadErr error
}

func (f *fakeStorage) Upload(_ context.Context, file storage.File, folder string, opts storage.UploadOptions) (*storage.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if _, err := io.Copy(io.Discard, file.Body); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, uploadedObject{
		FileName:    file.FileName,
		Folder:      folder,
		ContentType: file.ContentType,
		Preserve:    opts.PreserveFileName,
	})
	key := folder + "/" + file.FileName
	return &storage.UploadResult{URL: "https://cdn.test/" + key, Key: key}, nil
}

func (f *fakeStorage) Delete(_ context.Context, _ string) error { return nil }

func (f *fakeStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?signed", nil
}

// fakeTranscoder writes plausible artifacts into the workspace and replays
// a scripted progress sequence
type fakeTranscoder struct {
	progressScript []int
	thumbnailErr   error
	segmentErr     error
	segments       int
}

func (f *fakeTranscoder) Probe(_ context.Context, _ string) (*transcode.MediaInfo, error) {
	return &transcode.MediaInfo{Duration: 30 * time.Second, Width: 1280, Height: 720}, nil
}

func (f *fakeTranscoder) ExtractThumbnail(_ context.Context, _, outputPath string) error {
	if f.thumbnailErr != nil {
		return f.thumbnailErr
	}
	return os.WriteFile(outputPath, []byte("jpeg"), 0o644)
}

func (f *fakeTranscoder) Segment(_ context.Context, _, outputDir string) (<-chan int, <-chan error) {
	progressCh := make(chan int)
	errCh := make(chan error, 1)

	go func() {
		defer close(progressCh)

		for _, p := range f.progressScript {
			progressCh <- p
		}

		if f.segmentErr != nil {
			errCh <- f.segmentErr
			return
		}

		segments := f.segments
		if segments == 0 {
			segments = 3
		}
		for i := 0; i < segments; i++ {
			name := fmt.Sprintf("playlist%d.ts", i)
			if err := os.WriteFile(filepath.Join(outputDir, name), []byte("ts"), 0o644); err != nil {
				errCh <- err
				return
			}
		}
		if err := os.WriteFile(filepath.Join(outputDir, transcode.ManifestName), []byte("#EXTM3U"), 0o644); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return progressCh, errCh
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testJob(assetID, sourceURL string) *jobs.Job {
	return &jobs.Job{
		JobID:       "8b7a3e62-1df1-4f4a-90d5-5a3c6f2e9b01",
		AssetID:     assetID,
		OwnerID:     "user-1",
		SourceURL:   sourceURL,
		Attempt:     1,
		MaxAttempts: 3,
		State:       jobs.StateLeased,
	}
}

func TestPipelineSuccess(t *testing.T) {
	srv := sourceServer(t)
	assets := newFakeAssetWriter()
	store := &fakeStorage{}
	workRoot := t.TempDir()

	p := NewPipeline(testLogger(), assets, store, &fakeTranscoder{
		progressScript: []int{3, 12, 15, 40, 90, 100},
	}, srv.Client(), workRoot, StepTimeouts{})

	job := testJob("asset-a", srv.URL+"/raw.mp4")
	require.NoError(t, p.Run(context.Background(), job))

	// asset went PROCESSING and finished with both artifact URLs
	assert.Equal(t, []string{"asset-a"}, assets.processing)
	ready, ok := assets.ready["asset-a"]
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/videos/asset-a/playlist.m3u8", ready[0])
	assert.Equal(t, "https://cdn.test/thumbnails/asset-a-thumb.jpg", ready[1])

	// progress persisted at >=5 point steps, strictly increasing, ending at 100
	assert.Equal(t, []int{12, 40, 90, 100}, assets.progress["asset-a"])

	// every artifact except the raw input was uploaded with its name preserved
	names := make(map[string]uploadedObject)
	for _, obj := range store.objects {
		names[obj.FileName] = obj
		assert.True(t, obj.Preserve)
		assert.NotEqual(t, inputFileName, obj.FileName)
	}
	assert.Equal(t, "application/x-mpegURL", names[transcode.ManifestName].ContentType)
	assert.Equal(t, "video/MP2T", names["playlist0.ts"].ContentType)
	assert.Equal(t, "image/jpeg", names["asset-a-thumb.jpg"].ContentType)
	assert.Equal(t, "thumbnails", names["asset-a-thumb.jpg"].Folder)
	assert.Equal(t, "videos/asset-a", names[transcode.ManifestName].Folder)

	// workspace fully removed
	_, err := os.Stat(filepath.Join(workRoot, "asset-a"))
	assert.True(t, os.IsNotExist(err))
}

func TestPipelineDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assets := newFakeAssetWriter()
	store := &fakeStorage{}
	workRoot := t.TempDir()

	p := NewPipeline(testLogger(), assets, store, &fakeTranscoder{}, srv.Client(), workRoot, StepTimeouts{})

	err := p.Run(context.Background(), testJob("asset-b", srv.URL+"/raw.mp4"))
	require.Error(t, err)

	var transient *media.TransientError
	assert.ErrorAs(t, err, &transient)
	assert.True(t, media.IsRetryable(err))

	// nothing was uploaded and the workspace is gone even on failure
	assert.Empty(t, store.objects)
	_, statErr := os.Stat(filepath.Join(workRoot, "asset-b"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineSegmentFailure(t *testing.T) {
	srv := sourceServer(t)
	assets := newFakeAssetWriter()
	store := &fakeStorage{}
	workRoot := t.TempDir()

	p := NewPipeline(testLogger(), assets, store, &fakeTranscoder{
		progressScript: []int{10, 20},
		segmentErr:     errors.New("codec exploded mid-stream"),
	}, srv.Client(), workRoot, StepTimeouts{})

	err := p.Run(context.Background(), testJob("asset-c", srv.URL+"/raw.mp4"))
	require.Error(t, err)

	var codec *media.CodecError
	require.ErrorAs(t, err, &codec)
	assert.Equal(t, "segment", codec.Stage)
	assert.True(t, media.IsRetryable(err))

	// partial progress before the crash was still persisted
	assert.Equal(t, []int{10, 20}, assets.progress["asset-c"])
	assert.Empty(t, assets.ready)

	_, statErr := os.Stat(filepath.Join(workRoot, "asset-c"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineProgressStoreFailureIsSwallowed(t *testing.T) {
	srv := sourceServer(t)
	assets := newFakeAssetWriter()
	assets.progressErr = errors.New("db briefly away")
	workRoot := t.TempDir()

	p := NewPipeline(testLogger(), assets, &fakeStorage{}, &fakeTranscoder{
		progressScript: []int{50, 100},
	}, srv.Client(), workRoot, StepTimeouts{})

	require.NoError(t, p.Run(context.Background(), testJob("asset-d", srv.URL+"/raw.mp4")))
	assert.Contains(t, assets.ready, "asset-d")
}

func TestPipelineParallelJobsAreIsolated(t *testing.T) {
	srv := sourceServer(t)
	assets := newFakeAssetWriter()
	store := &fakeStorage{}
	workRoot := t.TempDir()

	p := NewPipeline(testLogger(), assets, store, &fakeTranscoder{
		progressScript: []int{25, 50, 75, 100},
	}, srv.Client(), workRoot, StepTimeouts{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	ids := []string{"asset-x", "asset-y"}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = p.Run(context.Background(), testJob(id, srv.URL+"/raw.mp4"))
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "job %d", i)
	}

	// both assets finished with their own artifact URLs
	assert.Equal(t, "https://cdn.test/videos/asset-x/playlist.m3u8", assets.ready["asset-x"][0])
	assert.Equal(t, "https://cdn.test/videos/asset-y/playlist.m3u8", assets.ready["asset-y"][0])

	// neither workspace survived
	for _, id := range ids {
		_, err := os.Stat(filepath.Join(workRoot, id))
		assert.True(t, os.IsNotExist(err))
	}
}

func TestArtifactContentType(t *testing.T) {
	assert.Equal(t, "application/x-mpegURL", artifactContentType("playlist.m3u8"))
	assert.Equal(t, "video/MP2T", artifactContentType("playlist42.ts"))
	assert.Equal(t, "image/jpeg", artifactContentType("cover.JPG"))
	assert.Equal(t, "application/octet-stream", artifactContentType("notes.txt"))
}
