package handler

import (
	"strconv"

	"ask-pdf-go/internal/service"
	"ask-pdf-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理 GET /search?query=&topK= 请求。topK 缺省或非法时使用配置的默认值。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "0"))
	if err != nil || topK < 0 {
		topK = 0
	}
	log.Infof("[SearchHandler] 收到搜索请求, query: %s, topK: %d", query, topK)

	results, err := h.searchService.Search(c.Request.Context(), query, topK)
	if err != nil {
		log.Errorf("[SearchHandler] 搜索服务返回错误, error: %v", err)
		respondError(c, err, nil)
		return
	}
	log.Infof("[SearchHandler] 搜索成功, query: '%s', 返回 %d 条结果", query, len(results))
	respondOK(c, results)
}
