package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

const uploadFormField = "file"

type uploadService interface {
	Store(ctx context.Context, citizenID string, r io.Reader) (*models.Upload, error)
	Open(ctx context.Context, token string) (*os.File, string, error)
}

// UploadHandler accepts submission photos and serves them back through signed links.
type UploadHandler struct {
	service  uploadService
	maxBytes int64
}

// NewUploadHandler builds the handler. maxBytes bounds the multipart body.
func NewUploadHandler(svc uploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{service: svc, maxBytes: maxBytes}
}

// Upload godoc
// @Summary Upload a waste photo
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Photo"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		// multipart framing needs headroom beyond the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	header, err := c.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "photo exceeds the upload limit"))
			return
		}
		response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, "validation failed", map[string]string{uploadFormField: "is required"}))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	upload, err := h.service.Store(c.Request.Context(), claims.UserID, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, upload)
}

// Serve godoc
// @Summary Fetch an uploaded photo
// @Tags Uploads
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /uploads/{token} [get]
func (h *UploadHandler) Serve(c *gin.Context) {
	file, name, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read photo"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), file)
}
