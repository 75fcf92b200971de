package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/blob"
	"staging-studio-backend/internal/models"
)

type objectOpener interface {
	Open(ctx context.Context, path string) (*blob.Object, error)
}

type MediaHandler struct {
	objects objectOpener
}

func NewMediaHandler(objects objectOpener) *MediaHandler {
	return &MediaHandler{objects: objects}
}

// Serve godoc
// @Summary     Stream a stored image
// @Description Proxies an object from the blob store. Responses are cacheable for a year.
// @Tags        media
// @Produce     image/jpeg
// @Param       path query string true "Object path"
// @Success     200 {file} binary
// @Failure     400 {object} models.MessageResponse
// @Failure     404 {object} models.MessageResponse
// @Router      /media [get]
func (h *MediaHandler) Serve(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, models.MessageResponse{Message: "Missing path"})
		return
	}
	obj, err := h.objects.Open(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, models.MessageResponse{Message: "Not found"})
			return
		}
		respondMessage(c, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = blob.DefaultContentType
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=31536000")
	if obj.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, obj.Body)
}
