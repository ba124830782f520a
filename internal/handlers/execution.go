package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stagebox/internal/executor"
	"stagebox/internal/logging"
	"stagebox/internal/runtime"
)

// Execute routes a snippet to an execution backend. The response body is
// always an ExecutionResult; backend failures surface inside it, never as
// a transport error.
func (h *Handler) Execute(c *gin.Context) {
	var req executor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, StandardResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	if req.TimeoutMs <= 0 && h.ExecTimeout > 0 {
		req.TimeoutMs = int(h.ExecTimeout / time.Millisecond)
	}

	result := h.Router.Route(c.Request.Context(), req)

	if h.Store != nil {
		if err := h.Store.Record(req, result); err != nil {
			logging.L().Warn("failed to persist execution record", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    result,
	})
}

// languageInfo describes one supported language and the modes that can
// serve it.
type languageInfo struct {
	Language string   `json:"language"`
	Modes    []string `json:"modes"`
}

// Languages reports the language/mode matrix. Every language reaches the
// remote backends; the browser mode is derived from the runtime's native
// snippet set.
func (h *Handler) Languages(c *gin.Context) {
	remoteModes := []string{"remote", "fallback", "auto"}
	allModes := []string{"browser", "remote", "fallback", "auto"}

	names := []string{"javascript", "typescript", "python", "go", "java", "c", "cpp", "rust", "ruby"}
	langs := make([]languageInfo, 0, len(names))
	for _, name := range names {
		modes := remoteModes
		if runtime.SupportsLanguage(name) {
			modes = allModes
		}
		langs = append(langs, languageInfo{Language: name, Modes: modes})
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    langs,
	})
}

// Executions returns recent execution history.
func (h *Handler) Executions(c *gin.Context) {
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, StandardResponse{
			Success: false,
			Error:   "Execution history is not enabled",
			Code:    "HISTORY_DISABLED",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.Store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, StandardResponse{
			Success: false,
			Error:   "Failed to load execution history",
			Code:    "HISTORY_QUERY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data:    records,
	})
}
