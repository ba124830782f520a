package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// previewRequest is a virtual file tree keyed by relative path.
type previewRequest struct {
	Files map[string]string `json:"files" binding:"required"`
}

// Preview accepts a file map and kicks off the mount/install/start
// pipeline. The call returns immediately with the session state at
// submission; clients follow progress via /preview/status or the
// websocket stream.
func (h *Handler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "File map must not be empty",
			Code:    "EMPTY_FILE_MAP",
		})
		return
	}

	snapshot := h.Controller.Apply(req.Files)
	c.JSON(http.StatusAccepted, StandardResponse{
		Success: true,
		Data:    snapshot,
	})
}

// PreviewStatus returns the current session snapshot.
func (h *Handler) PreviewStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    h.Controller.Status(),
	})
}

// PreviewRefresh clears the mount fingerprint so the next file map
// remounts even if its content is unchanged.
func (h *Handler) PreviewRefresh(c *gin.Context) {
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    h.Controller.Refresh(),
	})
}
