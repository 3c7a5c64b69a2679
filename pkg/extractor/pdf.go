package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

type pdfExtractor struct{}

// NewPDFExtractor 返回逐页提取文本的 PDF 解析器。
func NewPDFExtractor() Extractor {
	return pdfExtractor{}
}

// Extract 逐页提取纯文本并按页顺序拼接。损坏的 PDF 可能让底层库 panic，这里统一转为 ErrExtraction。
func (pdfExtractor) Extract(ctx context.Context, r io.Reader, fileName string) (text string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: 读取 '%s' 失败: %v", model.ErrExtraction, fileName, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: 解析 PDF '%s' 失败: %v", model.ErrExtraction, fileName, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: 打开 PDF '%s' 失败: %v", model.ErrExtraction, fileName, err)
	}

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrExtraction, err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: 提取 PDF '%s' 第 %d 页失败: %v", model.ErrExtraction, fileName, i, err)
		}
		b.WriteString(pageText)
	}
	log.Debugf("[PDFExtractor] '%s' 共 %d 页, 提取 %d 字节文本", fileName, numPages, b.Len())
	return strings.ToValidUTF8(b.String(), ""), nil
}
