package dto

type ListMediaRequest struct {
	OwnerID  string `form:"owner_id"`
	Kind     string `form:"kind"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListMediaResponse struct {
	Assets     []MediaAssetDTO `json:"assets"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MediaAssetDTO struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	PrimaryURL   string `json:"primary_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Error        string `json:"error,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	Encoding     string `json:"encoding,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type DownloadResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in_seconds"`
}
