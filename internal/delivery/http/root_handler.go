package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const apiVersion = "1.0.0"

// RootHandler serves service metadata at the root path.
type RootHandler struct{}

// NewRootHandler creates a new RootHandler.
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// Root handles GET /
func (h *RootHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pybox Python execution service",
		"version": apiVersion,
		"endpoints": gin.H{
			"execute": "/api/v1/execute",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}
