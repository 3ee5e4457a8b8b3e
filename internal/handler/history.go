package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fhirnlp/internal/model"
	"fhirnlp/internal/service"
)

// HistoryHandler serves the query log
type HistoryHandler struct {
	queryService *service.QueryService
	maxLimit     int
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(queryService *service.QueryService, maxLimit int) *HistoryHandler {
	return &HistoryHandler{
		queryService: queryService,
		maxLimit:     maxLimit,
	}
}

// Recent handles GET /api/v1/queries/recent
func (h *HistoryHandler) Recent(c *gin.Context) {
	limit := h.maxLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit. Must be a positive integer"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	queries, err := h.queryService.RecentQueries(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, service.ErrQueryLogDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Query log is disabled"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list queries: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.QueryHistoryResponse{
		Queries: queries,
		Count:   len(queries),
	})
}
