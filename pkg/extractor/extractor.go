// Package extractor 将上传的文档字节流转换为纯文本。
package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
)

// Extractor 从文档中提取纯文本。失败时返回包装了 model.ErrExtraction 的错误。
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// ExtractorFunc 让普通函数满足 Extractor 接口。
type ExtractorFunc func(ctx context.Context, r io.Reader, fileName string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, r io.Reader, fileName string) (string, error) {
	return f(ctx, r, fileName)
}

// Registry 根据文件后缀选择解析器，未命中时交给 fallback（通常是 Tika）。
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry 注册内置的 PDF、Markdown、纯文本解析器；配置了 Tika 时用它兜底其余格式。
func NewRegistry(tikaCfg config.TikaConfig) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(NewPDFExtractor(), ".pdf")
	r.Register(NewMarkdownExtractor(), ".md", ".markdown")
	r.Register(NewTextExtractor(), ".txt", ".text")
	if tikaCfg.ServerURL != "" {
		r.fallback = NewTikaClient(tikaCfg)
	}
	return r
}

// Register 为一个或多个后缀注册解析器，后缀不区分大小写。
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// SetFallback 设置未知后缀使用的解析器。
func (r *Registry) SetFallback(e Extractor) {
	r.fallback = e
}

// SupportedExtensions 返回已注册的后缀列表。
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract 实现 Extractor 接口。
func (r *Registry) Extract(ctx context.Context, reader io.Reader, fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if e, ok := r.byExt[ext]; ok {
		return e.Extract(ctx, reader, fileName)
	}
	if r.fallback != nil {
		return r.fallback.Extract(ctx, reader, fileName)
	}
	return "", fmt.Errorf("%w: 不支持的文件类型 '%s'", model.ErrExtraction, ext)
}
