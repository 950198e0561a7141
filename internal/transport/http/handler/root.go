package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// RootHandler serves the bundled frontend, or a liveness message when it is absent.
type RootHandler struct {
	indexPath string
	appName   string
}

func NewRootHandler(indexPath, appName string) *RootHandler {
	return &RootHandler{indexPath: indexPath, appName: appName}
}

func (h *RootHandler) Index(c *gin.Context) {
	if info, err := os.Stat(h.indexPath); err == nil && !info.IsDir() {
		c.File(h.indexPath)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": h.appName + " is running. Frontend file (index.html) not found, POST images to /predict.",
	})
}
