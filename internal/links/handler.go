package links

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"droplink-backend/internal/shared/metrics"
	"droplink-backend/internal/shared/server/respond"
	"droplink-backend/internal/shared/storage/object"
)

// Handler redeems signed retrieval tokens and streams the blob bytes. Only
// used with the TokenIssuer; S3 presigned URLs bypass the service entirely.
// BlobKeyFor maps a verified share id to its storage key, since tokens
// never carry the key itself.
type Handler struct {
	Verifier   *TokenIssuer
	Store      object.BlobStore
	BlobKeyFor func(shareID string) string
}

// NewHandler constructs a Handler.
func NewHandler(verifier *TokenIssuer, store object.BlobStore, blobKeyFor func(string) string) *Handler {
	return &Handler{Verifier: verifier, Store: store, BlobKeyFor: blobKeyFor}
}

// RegisterRoutes attaches the retrieve route to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/retrieve/:token", h.retrieve)
}

func (h *Handler) retrieve(c *gin.Context) {
	shareID, fileName, err := h.Verifier.Verify(c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			respond.Error(c, http.StatusUnauthorized, "invalid_link", "download link is invalid or has expired", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to verify download link", nil)
		return
	}

	rc, err := h.Store.Open(c.Request.Context(), h.BlobKeyFor(shareID))
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "file is no longer available", nil)
		return
	}
	defer rc.Close()

	if fileName != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		// headers are gone; nothing to do but drop the connection
		c.Abort()
		return
	}
	metrics.IncRetrieval()
}
