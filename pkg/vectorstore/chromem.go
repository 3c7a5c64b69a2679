package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"

	"github.com/philippgille/chromem-go"
)

// ChromemBackend 是进程内的向量库，适合单机部署和测试。只支持 cosine 相似度。
type ChromemBackend struct {
	db   *chromem.DB
	coll *chromem.Collection
}

// 向量全部由 embedding 组件预先计算，集合不应自行调用模型。
func precomputedOnly(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem collection requires precomputed embeddings")
}

// NewChromemBackend 打开（或创建）一个 chromem 集合。cfg.Path 为空时数据只保存在内存中。
func NewChromemBackend(cfg config.ChromemConfig) (*ChromemBackend, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: 打开 chromem 数据目录 '%s' 失败: %v", model.ErrStoreUnavailable, cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if name == "" {
		name = "ask_pdf_chunks"
	}
	coll, err := db.GetOrCreateCollection(name, map[string]string{"metric": "cosine"}, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: 打开集合 '%s' 失败: %v", model.ErrStoreUnavailable, name, err)
	}
	log.Infof("chromem 集合 '%s' 已就绪, 现有 %d 条记录", name, coll.Count())
	return &ChromemBackend{db: db, coll: coll}, nil
}

func (b *ChromemBackend) Name() string {
	return "chromem"
}

func (b *ChromemBackend) Metric() string {
	return "cosine"
}

func (b *ChromemBackend) Upsert(ctx context.Context, records []model.IndexedRecord) error {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if zeroNorm(r.Vector) {
			return fmt.Errorf("%w: 记录 '%s' 是零向量, 无法计算 cosine 相似度", model.ErrInvalidRecord, r.ID)
		}
		metadata := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Metadata:  metadata,
			Embedding: append([]float32(nil), r.Vector...),
			Content:   r.Text(),
		})
	}
	if err := b.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidRecord, err)
	}
	return nil
}

func (b *ChromemBackend) Query(ctx context.Context, vector model.EmbeddingVector, k int, includeMetadata bool) ([]model.Match, error) {
	n := b.coll.Count()
	if n == 0 {
		return []model.Match{}, nil
	}
	if zeroNorm(vector) {
		return []model.Match{}, nil
	}
	results, err := b.coll.QueryEmbedding(ctx, vector, min(k, n), nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRecord, err)
	}
	matches := make([]model.Match, 0, len(results))
	for _, r := range results {
		m := model.Match{RecordID: r.ID, Score: float64(r.Similarity)}
		if includeMetadata {
			m.Metadata = r.Metadata
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (b *ChromemBackend) Count(_ context.Context) (int, error) {
	return b.coll.Count(), nil
}

// Close 无需操作：持久化模式下每次写入都已落盘。
func (b *ChromemBackend) Close() error {
	return nil
}
