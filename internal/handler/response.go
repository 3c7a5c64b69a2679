// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/repository"

	"github.com/gin-gonic/gin"
)

// StatusCode 将错误分类映射为 HTTP 状态码。
func StatusCode(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	switch model.ErrorKind(err) {
	case "InvalidConfig", "EmptyQuery":
		return http.StatusBadRequest
	case "FileTooLarge":
		return http.StatusRequestEntityTooLarge
	case "ExtractionError", "EmbeddingError", "InvalidRecord":
		return http.StatusUnprocessableEntity
	case "ModelUnavailable", "StoreUnavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": data, "message": "success"})
}

// respondError 返回错误分类和可读原因；data 可以携带失败时的入库状态。
func respondError(c *gin.Context, err error, data interface{}) {
	status := StatusCode(err)
	kind := model.ErrorKind(err)
	if errors.Is(err, repository.ErrNotFound) {
		kind = "NotFound"
	}
	body := gin.H{"code": status, "error": kind, "message": err.Error()}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}
