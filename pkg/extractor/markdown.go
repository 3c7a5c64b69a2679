package extractor

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"ask-pdf-go/internal/model"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

type markdownExtractor struct {
	md goldmark.Markdown
}

// NewMarkdownExtractor 返回去掉 Markdown 标记、保留段落结构的解析器。
func NewMarkdownExtractor() Extractor {
	return &markdownExtractor{md: goldmark.New()}
}

func (m *markdownExtractor) Extract(_ context.Context, r io.Reader, fileName string) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: 读取 '%s' 失败: %v", model.ErrExtraction, fileName, err)
	}
	doc := m.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					b.WriteString("\n")
				case node.SoftLineBreak():
					b.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
		}
		// 块级节点结束时用空行分隔，保留段落边界供切块使用
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: 解析 Markdown '%s' 失败: %v", model.ErrExtraction, fileName, err)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n")), nil
}
