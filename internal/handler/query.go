package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"fhirnlp/internal/model"
	"fhirnlp/internal/service"
)

// QueryHandler handles natural language query HTTP requests
type QueryHandler struct {
	queryService *service.QueryService
	examples     []string
	maxLength    int
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryService *service.QueryService, examples []string, maxLength int) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		examples:     examples,
		maxLength:    maxLength,
	}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxErr.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: query must not be blank"})
		return
	}
	if h.maxLength > 0 && utf8.RuneCountInString(req.Query) > h.maxLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: query exceeds %d characters", h.maxLength)})
		return
	}

	response, err := h.queryService.Process(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Examples handles GET /api/v1/examples
func (h *QueryHandler) Examples(c *gin.Context) {
	examples := h.examples
	if examples == nil {
		examples = []string{}
	}
	c.JSON(http.StatusOK, model.ExamplesResponse{Examples: examples})
}
