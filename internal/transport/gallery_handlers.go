package transport

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/pkg/models"
	"github.com/anime-shed/image-editor-go/pkg/validation"
)

// uploadField is the multipart field carrying gallery images
const uploadField = "files"

func (h *handler) listGallery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.editor.Gallery()})
}

// addToGallery accepts either a multipart upload or a JSON {url} body
func (h *handler) addToGallery(c *gin.Context) {
	if c.ContentType() == "multipart/form-data" {
		h.uploadImages(c)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.URLIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	item, err := h.editor.AddImageFromURL(ctx, req.URL)
	if err != nil {
		respondAppError(c, "failed to add image", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *handler) uploadImages(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid multipart form", err)
		return
	}
	files := form.File[uploadField]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "no files uploaded",
			fmt.Errorf("expected one or more %q parts", uploadField))
		return
	}

	uploads := make([]validation.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh, h.cfg.MaxUploadFileSize)
		if err != nil {
			respondError(c, http.StatusBadRequest, "failed to read file", err)
			return
		}
		uploads = append(uploads, validation.Upload{Name: fh.Filename, Data: data})
	}

	res, err := h.editor.AddImages(ctx, uploads)
	if err != nil {
		respondAppError(c, "failed to add images", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// readUpload reads at most limit+1 bytes so oversized files are still
// reported by the validator without being buffered whole
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

func (h *handler) removeImage(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.editor.RemoveImage(ctx, c.Param("id")); err != nil {
		respondAppError(c, "failed to remove image", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) imageData(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	data, contentType, err := h.editor.ImageData(ctx, c.Param("id"), c.Query("variant"))
	if err != nil {
		respondAppError(c, "failed to load image", err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *handler) requeue(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req models.RequeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	items, err := h.editor.Requeue(ctx, req.IDs)
	if err != nil {
		var appErr *apperrors.AppError
		if len(items) > 0 && errors.As(err, &appErr) {
			appErr.WithDetails(fmt.Sprintf("%d image(s) requeued before the failure", len(items)))
		}
		respondAppError(c, "failed to requeue images", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": items, "selection": h.editor.Selection()})
}

func (h *handler) getSelection(c *gin.Context) {
	c.JSON(http.StatusOK, models.SelectionResponse{IDs: h.editor.Selection()})
}

func (h *handler) clearSelection(c *gin.Context) {
	h.editor.ClearSelection()
	c.JSON(http.StatusOK, models.SelectionResponse{IDs: []string{}})
}

func (h *handler) toggleSelection(c *gin.Context) {
	ids, err := h.editor.ToggleSelection(c.Param("id"))
	if err != nil {
		respondAppError(c, "failed to update selection", err)
		return
	}
	c.JSON(http.StatusOK, models.SelectionResponse{IDs: ids})
}
