// Package vectorstore 提供向量库客户端：分批写入 (id, vector, metadata) 记录并执行 top-k 相似度查询。
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"
)

// DefaultBatchSize 是单次写入请求的最大记录数，用于规避后端的请求体大小限制。
const DefaultBatchSize = 100

// Backend 是具体的向量库实现。相似度度量在建索引时确定，查询时不可更改。
// 实现返回的错误应包装 model.ErrStoreUnavailable 或 model.ErrInvalidRecord，未包装的错误按连接失败处理。
type Backend interface {
	Name() string
	Upsert(ctx context.Context, records []model.IndexedRecord) error
	Query(ctx context.Context, vector model.EmbeddingVector, k int, includeMetadata bool) ([]model.Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// MetricReporter 由能报告相似度度量的后端实现；未实现时按 cosine 处理。
type MetricReporter interface {
	Metric() string
}

func metricOf(b Backend) string {
	if mr, ok := b.(MetricReporter); ok {
		return mr.Metric()
	}
	return "cosine"
}

// PartialWriteError 表示一批记录中只有部分写入成功。Written 条记录已经可以被查询到。
type PartialWriteError struct {
	Written int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("部分写入 (%d 条成功): %v", e.Written, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// Client 在 Backend 之上实现分批写入、输入校验和结果排序。
type Client struct {
	backend   Backend
	batchSize int
	dimension int
}

// NewClient 创建一个 Client。dimension 为 0 时以每次写入的第一条记录为准。
func NewClient(backend Backend, batchSize, dimension int) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{backend: backend, batchSize: batchSize, dimension: dimension}
}

// Open 根据配置打开向量库后端；Elasticsearch 索引不存在时按 dimension 和 metric 创建。
func Open(ctx context.Context, vsCfg config.VectorStoreConfig, esCfg config.ElasticsearchConfig, dimension int) (Backend, error) {
	switch vsCfg.Backend {
	case "elasticsearch":
		b, err := NewElasticsearchBackend(esCfg, vsCfg.Metric)
		if err != nil {
			return nil, err
		}
		if err := b.EnsureIndex(ctx, dimension); err != nil {
			return nil, err
		}
		return b, nil
	case "chromem":
		if vsCfg.Metric != "" && vsCfg.Metric != "cosine" {
			return nil, fmt.Errorf("%w: chromem 只支持 cosine 相似度", model.ErrInvalidConfig)
		}
		return NewChromemBackend(vsCfg.Chromem)
	default:
		return nil, fmt.Errorf("%w: 未知的向量库后端 '%s'", model.ErrInvalidConfig, vsCfg.Backend)
	}
}

// Backend 返回底层实现。
func (c *Client) Backend() Backend {
	return c.backend
}

// Upsert 依次提交每批至多 batchSize 条记录。各批次相互独立：第 N 批失败不会回滚前面已提交的批次。
// 返回值为失败前成功提交的记录总数，失败批次中后端确认已写入的记录也计算在内。
func (c *Client) Upsert(ctx context.Context, records []model.IndexedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := c.validate(records); err != nil {
		return 0, err
	}

	submitted := 0
	total := (len(records) + c.batchSize - 1) / c.batchSize
	for i, batchNo := 0, 1; i < len(records); i, batchNo = i+c.batchSize, batchNo+1 {
		batch := records[i:min(i+c.batchSize, len(records))]
		if err := c.backend.Upsert(ctx, batch); err != nil {
			var pw *PartialWriteError
			if errors.As(err, &pw) {
				submitted += min(pw.Written, len(batch))
			}
			err = classify(ctx, err)
			log.Errorf("[VectorStore] 第 %d/%d 批写入 %s 失败, 已提交 %d 条, error: %v", batchNo, total, c.backend.Name(), submitted, err)
			return submitted, err
		}
		submitted += len(batch)
		log.Debugf("[VectorStore] 第 %d/%d 批写入成功, 本批 %d 条", batchNo, total, len(batch))
	}
	log.Infof("[VectorStore] 写入完成, 共 %d 条记录, %d 批", submitted, total)
	return submitted, nil
}

func (c *Client) validate(records []model.IndexedRecord) error {
	dim := c.dimension
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	if dim == 0 {
		return fmt.Errorf("%w: 记录 '%s' 的向量为空", model.ErrInvalidRecord, records[0].ID)
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: 记录 id 不能为空", model.ErrInvalidRecord)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: 同一次写入中存在重复的 id '%s'", model.ErrInvalidRecord, r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: 记录 '%s' 的向量维度为 %d, 期望 %d", model.ErrInvalidRecord, r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

// Query 返回与 vector 最相似的至多 k 条记录，按得分降序排列。索引为空时返回空结果而非错误。
func (c *Client) Query(ctx context.Context, vector model.EmbeddingVector, k int, includeMetadata bool) (model.QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k 必须大于 0, 实际为 %d", model.ErrInvalidConfig, k)
	}
	if c.dimension > 0 && len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: 查询向量维度为 %d, 期望 %d", model.ErrInvalidRecord, len(vector), c.dimension)
	}

	if metricOf(c.backend) == "cosine" && zeroNorm(vector) {
		// 零向量与任何记录的 cosine 相似度都没有定义，不存在可排序的结果。
		log.Debugf("[VectorStore] 查询向量是零向量, 返回空结果")
		return model.QueryResult{}, nil
	}

	matches, err := c.backend.Query(ctx, vector, k, includeMetadata)
	if err != nil {
		err = classify(ctx, err)
		log.Errorf("[VectorStore] 查询 %s 失败, error: %v", c.backend.Name(), err)
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	result := make(model.QueryResult, 0, len(matches))
	for _, m := range matches {
		if !includeMetadata {
			m.Metadata = nil
		}
		result = append(result, m)
	}
	return result, nil
}

// Count 返回索引中的记录数。
func (c *Client) Count(ctx context.Context) (int, error) {
	n, err := c.backend.Count(ctx)
	if err != nil {
		return 0, classify(ctx, err)
	}
	return n, nil
}

// Close 释放后端资源。
func (c *Client) Close() error {
	return c.backend.Close()
}

// classify 保证返回的错误属于 StoreUnavailable 或 InvalidRecord 之一。
func classify(ctx context.Context, err error) error {
	switch model.ErrorKind(err) {
	case "StoreUnavailable", "InvalidRecord", "InvalidConfig":
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}

func zeroNorm(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return sum == 0 || math.IsNaN(sum)
}
