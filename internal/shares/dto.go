package shares

import (
	"time"

	"droplink-backend/internal/links"
)

// CreateResponse is returned after a successful upload.
type CreateResponse struct {
	ShareID       string    `json:"shareId"`
	ShareableLink string    `json:"shareableLink"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// StatusResponse describes a share without requiring credentials.
type StatusResponse struct {
	OriginalName     string    `json:"originalName"`
	SizeBytes        int64     `json:"sizeBytes"`
	ExpiresAt        time.Time `json:"expiresAt"`
	IsExpired        bool      `json:"isExpired"`
	PasswordRequired bool      `json:"passwordRequired"`
}

// UnlockResponse carries the freshly minted retrieval handle.
type UnlockResponse struct {
	DownloadURL  string    `json:"downloadUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
	OriginalName string    `json:"originalName"`
	SizeBytes    int64     `json:"sizeBytes"`
}

func toCreateResponse(share Share, baseURL string) CreateResponse {
	return CreateResponse{
		ShareID:       share.ID,
		ShareableLink: baseURL + "/download/" + share.ID,
		ExpiresAt:     share.ExpiresAt,
	}
}

func toStatusResponse(share Share, expired bool) StatusResponse {
	return StatusResponse{
		OriginalName:     share.OriginalName,
		SizeBytes:        share.SizeBytes,
		ExpiresAt:        share.ExpiresAt,
		IsExpired:        expired,
		PasswordRequired: share.PasswordRequired(),
	}
}

func toUnlockResponse(share Share, handle links.Handle) UnlockResponse {
	return UnlockResponse{
		DownloadURL:  handle.URL,
		ExpiresAt:    handle.ExpiresAt,
		OriginalName: share.OriginalName,
		SizeBytes:    share.SizeBytes,
	}
}
