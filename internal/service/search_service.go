package service

import (
	"context"
	"fmt"
	"strings"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"
)

// Answerer 返回与查询最相似的分块。
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (model.QueryResult, error)
}

// SearchService 接口定义了搜索操作。
type SearchService interface {
	Search(ctx context.Context, query string, topK int) ([]model.SearchResponseDTO, error)
}

type searchService struct {
	answerer Answerer
	cfg      config.SearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(answerer Answerer, cfg config.SearchConfig) SearchService {
	return &searchService{answerer: answerer, cfg: cfg}
}

// Search 执行向量检索。topK <= 0 时使用配置的默认值。
func (s *searchService) Search(ctx context.Context, query string, topK int) ([]model.SearchResponseDTO, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: 查询内容不能为空", model.ErrEmptyQuery)
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	log.Infof("[SearchService] 开始执行向量检索, query: '%s', topK: %d", query, topK)

	result, err := s.answerer.Answer(ctx, query, topK)
	if err != nil {
		log.Errorf("[SearchService] 向量检索失败, error: %v", err)
		return nil, err
	}

	dtos := make([]model.SearchResponseDTO, 0, len(result))
	for i, m := range result {
		dtos = append(dtos, model.SearchResponseDTO{
			Rank:       i + 1,
			RecordID:   m.RecordID,
			Score:      m.Score,
			DocumentID: m.Metadata[model.MetaDocumentID],
			FileName:   m.Metadata[model.MetaFileName],
			ChunkIndex: m.Metadata[model.MetaChunkIndex],
			Snippet:    snippet(m.Metadata[model.MetaText], s.cfg.SnippetLength),
		})
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(dtos))
	return dtos, nil
}

// snippet 截取前 n 个字符，n <= 0 时返回全文。
func snippet(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
