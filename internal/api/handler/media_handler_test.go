package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-be/internal/api/dto"
	"github.com/cuongbtq/media-be/internal/ingest"
	"github.com/cuongbtq/media-be/internal/media"
	"github.com/cuongbtq/media-be/internal/storage"
)

const testAssetID = "3f2c8a10-9b4e-4f6d-8a1c-2e5b7d9f0a11"

type fakeIngestor struct {
	asset *media.Asset
	err   error
	got   ingest.Upload
	owner string
}

func (f *fakeIngestor) Process(_ context.Context, upload ingest.Upload, ownerID string) (*media.Asset, error) {
	f.got = upload
	f.owner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return f.asset, nil
}

type fakeAssetReader struct {
	assets  map[string]*media.Asset
	listed  []media.Asset
	filter  media.AssetFilter
	deleted []string
}

func (f *fakeAssetReader) GetByID(_ context.Context, assetID string) (*media.Asset, error) {
	asset, ok := f.assets[assetID]
	if !ok {
		return nil, media.ErrAssetNotFound
	}
	return asset, nil
}

func (f *fakeAssetReader) ListAssets(_ context.Context, filter media.AssetFilter) ([]media.Asset, error) {
	f.filter = filter
	return f.listed, nil
}

func (f *fakeAssetReader) Delete(_ context.Context, assetID string) error {
	f.deleted = append(f.deleted, assetID)
	return nil
}

type fakeSigner struct {
	deletedKeys []string
}

func (f *fakeSigner) Upload(_ context.Context, _ storage.File, folder string, _ storage.UploadOptions) (*storage.UploadResult, error) {
	return &storage.UploadResult{URL: folder, Key: folder}, nil
}

func (f *fakeSigner) Delete(_ context.Context, key string) error {
	f.deletedKeys = append(f.deletedKeys, key)
	return nil
}

func (f *fakeSigner) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.test/" + key, nil
}

func newTestRouter(deps *Dependencies) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewMediaHandler(deps)
	r.POST("/api/v1/media", h.UploadMedia)
	r.GET("/api/v1/media", h.ListMedia)
	r.GET("/api/v1/media/:asset_id", h.GetMedia)
	r.GET("/api/v1/media/:asset_id/download", h.DownloadMedia)
	r.DELETE("/api/v1/media/:asset_id", h.DeleteMedia)
	return r
}

func testDeps(ing *fakeIngestor, assets *fakeAssetReader, signer *fakeSigner) *Dependencies {
	return &Dependencies{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Ingest:        ing,
		Assets:        assets,
		Storage:       signer,
		PublicBaseURL: "https://cdn.test",
	}
}

func readyAsset() *media.Asset {
	return &media.Asset{
		ID:           testAssetID,
		OwnerID:      "user-1",
		Kind:         media.KindVideo,
		Status:       media.StatusReady,
		Progress:     100,
		PrimaryURL:   sql.NullString{String: "https://cdn.test/videos/" + testAssetID + "/playlist.m3u8", Valid: true},
		ThumbnailURL: sql.NullString{String: "https://cdn.test/thumbnails/" + testAssetID + "-thumb.jpg", Valid: true},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func multipartBody(t *testing.T, fieldName, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + fieldName + `"; filename="` + fileName + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadMediaVideoAccepted(t *testing.T) {
	ing := &fakeIngestor{asset: &media.Asset{
		ID:     testAssetID,
		Kind:   media.KindVideo,
		Status: media.StatusPending,
	}}
	r := newTestRouter(testDeps(ing, &fakeAssetReader{}, &fakeSigner{}))

	body, contentType := multipartBody(t, "file", "clip.mp4", "video/mp4", []byte("mp4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "user-1", ing.owner)
	assert.Equal(t, "clip.mp4", ing.got.FileName)
	assert.Equal(t, "video/mp4", ing.got.ContentType)

	var resp dto.MediaAssetDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, media.StatusPending, resp.Status)
}

func TestUploadMediaImageCreated(t *testing.T) {
	ing := &fakeIngestor{asset: &media.Asset{
		ID:     testAssetID,
		Kind:   media.KindImage,
		Status: media.StatusReady,
	}}
	r := newTestRouter(testDeps(ing, &fakeAssetReader{}, &fakeSigner{}))

	body, contentType := multipartBody(t, "file", "photo.png", "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestUploadMediaRequiresUserHeader(t *testing.T) {
	r := newTestRouter(testDeps(&fakeIngestor{}, &fakeAssetReader{}, &fakeSigner{}))

	body, contentType := multipartBody(t, "file", "clip.mp4", "video/mp4", []byte("mp4"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadMediaUnsupportedType(t *testing.T) {
	ing := &fakeIngestor{err: media.ErrUnsupportedMediaType}
	r := newTestRouter(testDeps(ing, &fakeAssetReader{}, &fakeSigner{}))

	body, contentType := multipartBody(t, "file", "doc.pdf", "application/pdf", []byte("pdf"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "user-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMedia(t *testing.T) {
	assets := &fakeAssetReader{assets: map[string]*media.Asset{testAssetID: readyAsset()}}
	r := newTestRouter(testDeps(&fakeIngestor{}, assets, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+testAssetID, nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.MediaAssetDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, media.StatusReady, resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.NotEmpty(t, resp.PrimaryURL)
}

func TestGetMediaNotFound(t *testing.T) {
	r := newTestRouter(testDeps(&fakeIngestor{}, &fakeAssetReader{}, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+testAssetID, nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMediaRejectsBadID(t *testing.T) {
	r := newTestRouter(testDeps(&fakeIngestor{}, &fakeAssetReader{}, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMediaPagination(t *testing.T) {
	// three rows for a page size of two means a next cursor must appear
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	listed := []media.Asset{
		{ID: "a1", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "a2", CreatedAt: base.Add(time.Hour)},
		{ID: "a3", CreatedAt: base},
	}
	assets := &fakeAssetReader{listed: listed}
	r := newTestRouter(testDeps(&fakeIngestor{}, assets, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media?page_size=2&owner_id=user-1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListMediaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Assets, 2)
	assert.NotEmpty(t, resp.NextCursor)
	assert.Equal(t, "user-1", assets.filter.OwnerID)

	cursor, err := DecodeAssetCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "a2", cursor.AssetID)
}

func TestListMediaRejectsBadCursor(t *testing.T) {
	r := newTestRouter(testDeps(&fakeIngestor{}, &fakeAssetReader{}, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media?cursor=%21%21%21", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadMediaSignsPrimaryURL(t *testing.T) {
	assets := &fakeAssetReader{assets: map[string]*media.Asset{testAssetID: readyAsset()}}
	signer := &fakeSigner{}
	r := newTestRouter(testDeps(&fakeIngestor{}, assets, signer))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+testAssetID+"/download", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.DownloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://signed.test/videos/"+testAssetID+"/playlist.m3u8", resp.URL)
}

func TestDownloadMediaNotReady(t *testing.T) {
	pending := readyAsset()
	pending.Status = media.StatusPending
	pending.PrimaryURL = sql.NullString{}
	assets := &fakeAssetReader{assets: map[string]*media.Asset{testAssetID: pending}}
	r := newTestRouter(testDeps(&fakeIngestor{}, assets, &fakeSigner{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/media/"+testAssetID+"/download", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteMediaRemovesObjectsAndRow(t *testing.T) {
	assets := &fakeAssetReader{assets: map[string]*media.Asset{testAssetID: readyAsset()}}
	signer := &fakeSigner{}
	r := newTestRouter(testDeps(&fakeIngestor{}, assets, signer))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/media/"+testAssetID, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{testAssetID}, assets.deleted)
	assert.Equal(t, []string{
		"videos/" + testAssetID + "/playlist.m3u8",
		"thumbnails/" + testAssetID + "-thumb.jpg",
	}, signer.deletedKeys)
}
