package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由。
func RegisterRoutes(r *gin.Engine, docHandler *DocumentHandler, searchHandler *SearchHandler) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/:id/status", docHandler.Status)
		}
		apiV1.GET("/search", searchHandler.Search)
	}
}
