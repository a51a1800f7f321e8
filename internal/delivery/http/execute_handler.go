package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pybox/internal/domain"
	"pybox/internal/metrics"
	"pybox/internal/usecase"
)

// ExecuteHandler handles HTTP requests for code execution.
type ExecuteHandler struct {
	executeUC *usecase.ExecuteCodeUsecase
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(executeUC *usecase.ExecuteCodeUsecase) *ExecuteHandler {
	return &ExecuteHandler{
		executeUC: executeUC,
	}
}

// Execute handles POST /api/v1/execute
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req domain.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.RequestsRejected.WithLabelValues("malformed_body").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := req.Validate(); err != nil {
		switch {
		case errors.Is(err, domain.ErrCodeTooLarge):
			metrics.RequestsRejected.WithLabelValues("payload_too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		default:
			metrics.RequestsRejected.WithLabelValues("invalid_request").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	// The usecase absorbs every internal failure into the response model, so
	// any completed execution is a 200 regardless of its status.
	resp := h.executeUC.Execute(c.Request.Context(), &req)
	c.JSON(http.StatusOK, resp)
}
