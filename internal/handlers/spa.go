package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/models"
)

// SPAHandler serves the built client application. Paths that name a file in
// the static directory get the file; every other non-API path gets
// index.html so client-side routes such as /pricing resolve.
type SPAHandler struct {
	root string
}

func NewSPAHandler(root string) *SPAHandler {
	return &SPAHandler{root: root}
}

func (h *SPAHandler) Serve(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || p == "/api" {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	if h.root == "" {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		return
	}

	clean := path.Clean("/" + p)
	if clean != "/" {
		file := filepath.Join(h.root, filepath.FromSlash(clean))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}
	}
	c.Header("Cache-Control", "no-cache")
	c.File(filepath.Join(h.root, "index.html"))
}
