package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
)

// TikaClient 是 Apache Tika 服务器的客户端，用于兜底解析 Office 等格式。
type TikaClient struct {
	serverURL  string
	httpClient *http.Client
}

// NewTikaClient 创建一个新的 Tika 客户端实例。
func NewTikaClient(cfg config.TikaConfig) *TikaClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TikaClient{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Extract 根据文件后缀推断 MIME 类型，并调用 Tika 提取文本。
func (c *TikaClient) Extract(ctx context.Context, r io.Reader, fileName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", r)
	if err != nil {
		return "", fmt.Errorf("%w: 创建 Tika 请求失败: %v", model.ErrExtraction, err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: 调用 Tika 失败: %v", model.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: Tika 返回错误 [%d]: %s", model.ErrExtraction, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: 读取 Tika 响应失败: %v", model.ErrExtraction, err)
	}
	return strings.ToValidUTF8(string(body), ""), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
