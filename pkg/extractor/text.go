package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"ask-pdf-go/internal/model"
)

// NewTextExtractor 返回纯文本解析器，要求输入是合法的 UTF-8。
func NewTextExtractor() Extractor {
	return ExtractorFunc(func(_ context.Context, r io.Reader, fileName string) (string, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("%w: 读取 '%s' 失败: %v", model.ErrExtraction, fileName, err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: '%s' 不是合法的 UTF-8 文本", model.ErrExtraction, fileName)
		}
		// 去掉 UTF-8 BOM
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	})
}
