// REST API handlers for snippet execution and live preview.

package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stagebox/internal/executor"
	"stagebox/internal/session"
	"stagebox/internal/store"
)

// Handler contains all the dependencies for API handlers
type Handler struct {
	Router     *executor.Router
	Controller *session.Controller
	Store      *store.Store

	// ExecTimeout caps requests that do not carry their own timeout.
	ExecTimeout time.Duration
}

// NewHandler creates a new handler instance
func NewHandler(router *executor.Router, controller *session.Controller, st *store.Store) *Handler {
	return &Handler{
		Router:     router,
		Controller: controller,
		Store:      st,
	}
}

// StandardResponse represents a standard API response
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// RegisterRoutes mounts all API routes on the router group.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/execute", h.Execute)
	api.GET("/languages", h.Languages)
	api.GET("/executions", h.Executions)

	api.POST("/preview", h.Preview)
	api.GET("/preview/status", h.PreviewStatus)
	api.POST("/preview/refresh", h.PreviewRefresh)
	api.GET("/ws/preview", h.Controller.HandleLogStream)
}
