package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API under /api/v1 plus the unversioned paths
// older clients call
func RegisterRoutes(router gin.IRouter, query *QueryHandler, history *HistoryHandler) {
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/query", query.Query)
		apiV1.GET("/examples", query.Examples)
		apiV1.GET("/queries/recent", history.Recent)
	}

	router.POST("/query", query.Query)
	router.GET("/examples", query.Examples)
}
