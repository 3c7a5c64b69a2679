package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/internal/service"
	"ask-pdf-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档上传和入库状态相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理 multipart 表单字段 file 的上传。
// 同步模式下返回最终入库结果，异步模式下返回 202 和 Received 状态。
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "error": "BadRequest", "message": "缺少上传文件字段 file"})
		return
	}
	f, err := header.Open()
	if err != nil {
		log.Error("Upload: 打开上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "error": "Internal", "message": "读取上传文件失败"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("Upload: 读取上传文件失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "error": "Internal", "message": "读取上传文件失败"})
		return
	}

	ing, err := h.docService.Upload(c.Request.Context(), header.Filename, data)
	if err != nil {
		log.Warnf("[DocumentHandler] 上传 '%s' 失败: %v", header.Filename, err)
		var data interface{}
		if ing != nil {
			data = ing
		}
		respondError(c, err, data)
		return
	}
	if ing.State == model.StageReceived {
		c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "data": ing, "message": "已接收，正在后台入库"})
		return
	}
	respondOK(c, ing)
}

// List 分页列出已登记的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.docService.List(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error("List: failed", err)
		respondError(c, err, nil)
		return
	}
	respondOK(c, docs)
}

// Status 返回文档最近一次的入库状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	status, err := h.docService.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warnf("[DocumentHandler] 查询状态失败, id: %s, error: %v", c.Param("id"), err)
		}
		respondError(c, err, nil)
		return
	}
	respondOK(c, status)
}
