package shares

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"droplink-backend/internal/shared/server/respond"
)

const defaultMaxUploadBytes = 100 << 20 // 100MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	PublicBaseURL  string
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, publicBaseURL string, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		Svc:            svc,
		PublicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		MaxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes attaches share routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/shares", h.create)
	rg.GET("/shares/:id", h.status)
	rg.POST("/shares/:id/unlock", h.unlock)
}

func (h *Handler) create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	expirySpec := strings.TrimSpace(c.PostForm("expiresIn"))
	if expirySpec == "" {
		expirySpec = strings.TrimSpace(c.PostForm("expiresAt"))
	}

	share, err := h.Svc.Create(c.Request.Context(), CreateInput{
		FileName:   fileHeader.Filename,
		Password:   strings.TrimSpace(c.PostForm("password")),
		ExpirySpec: expirySpec,
		Data:       data,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create share", nil)
		}
		return
	}

	c.Set("shareId", share.ID)
	respond.Created(c, toCreateResponse(share, h.PublicBaseURL))
}

func (h *Handler) status(c *gin.Context) {
	share, expired, err := h.Svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "share not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch share", nil)
		}
		return
	}

	c.Set("shareId", share.ID)
	respond.OK(c, toStatusResponse(share, expired))
}

type unlockRequest struct {
	Password string `json:"password"`
}

func (h *Handler) unlock(c *gin.Context) {
	var req unlockRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	grant, err := h.Svc.Unlock(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Password))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "share not found", nil)
		case errors.Is(err, ErrExpired):
			respond.Error(c, http.StatusGone, "expired", "share has expired", nil)
		case errors.Is(err, ErrUnauthorized):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid password", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to unlock share", nil)
		}
		return
	}

	c.Set("shareId", grant.Share.ID)
	respond.OK(c, toUnlockResponse(grant.Share, grant.Handle))
}
