// Package pipeline 定义了文档入库和检索的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"ask-pdf-go/internal/chunker"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/embedding"
	"ask-pdf-go/pkg/extractor"
	"ask-pdf-go/pkg/log"
	"ask-pdf-go/pkg/vectorstore"
)

// StageError 表示入库在进入 Stage 时失败，Kind 为错误分类名称。
type StageError struct {
	Stage model.Stage
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("入库在 %s 阶段失败 (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Processor 封装了文件处理的所有依赖和逻辑。
type Processor struct {
	extractor extractor.Extractor
	splitter  *chunker.Splitter
	embedder  embedding.Client
	store     *vectorstore.Client
	reporter  Reporter
}

// NewProcessor 创建一个新的 Processor 实例。reporter 为 nil 时不推送状态。
func NewProcessor(
	ext extractor.Extractor,
	splitter *chunker.Splitter,
	embedder embedding.Client,
	store *vectorstore.Client,
	reporter Reporter,
) *Processor {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Processor{
		extractor: ext,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		reporter:  reporter,
	}
}

// DocumentID 返回文档内容的 MD5，作为记录 id 的前缀。
func DocumentID(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// RecordID 返回文档第 ordinal 个分块在索引中的 id。
func RecordID(documentID string, ordinal int) string {
	return documentID + "_" + strconv.Itoa(ordinal)
}

// Ingest 依次执行 提取 → 切块 → 向量化 → 写入，任一阶段失败都会中止整个入库。
// 失败时返回的 Ingestion 处于 Failed 状态，error 为 *StageError。
func (p *Processor) Ingest(ctx context.Context, doc model.RawDocument) (*model.Ingestion, error) {
	if doc.ID == "" {
		doc.ID = DocumentID(doc.Data)
	}
	ing := &model.Ingestion{DocumentID: doc.ID, FileName: doc.FileName}
	p.advance(ctx, ing, model.StageReceived)
	log.Infof("[Processor] 开始处理文件, DocumentID: %s, FileName: %s, 大小: %d字节", doc.ID, doc.FileName, len(doc.Data))

	// 1. 提取文本
	log.Info("[Processor] 步骤1: 提取文本内容")
	text, err := p.extractor.Extract(ctx, bytes.NewReader(doc.Data), doc.FileName)
	if err != nil {
		return p.fail(ctx, ing, model.StageExtracted, err)
	}
	p.advance(ctx, ing, model.StageExtracted)
	log.Infof("[Processor] 步骤1: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 文本切块
	log.Infof("[Processor] 步骤2: 进行文本分块, chunkSize: %d, chunkOverlap: %d", p.splitter.ChunkSize(), p.splitter.ChunkOverlap())
	chunks, err := p.splitter.Split(text)
	if err != nil {
		return p.fail(ctx, ing, model.StageChunked, err)
	}
	ing.ChunkCount = len(chunks)
	p.advance(ctx, ing, model.StageChunked)
	log.Infof("[Processor] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化。没有分块时不加载模型。
	var vectors []model.EmbeddingVector
	if len(chunks) > 0 {
		log.Infof("[Processor] 步骤3: 开始向量化 %d 个分块", len(chunks))
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err = p.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return p.fail(ctx, ing, model.StageEmbedded, err)
		}
	} else {
		log.Warnf("[Processor] 文件 '%s' 未生成任何文本分块, 跳过向量化和写入", doc.FileName)
	}
	p.advance(ctx, ing, model.StageEmbedded)

	// 4. 写入向量库
	if len(chunks) > 0 {
		records := p.buildRecords(doc, chunks, vectors)
		log.Infof("[Processor] 步骤4: 开始写入 %d 条记录到向量库", len(records))
		stored, err := p.store.Upsert(ctx, records)
		ing.RecordsStored = stored
		if err != nil {
			return p.fail(ctx, ing, model.StageStored, err)
		}
	}
	p.advance(ctx, ing, model.StageStored)

	p.advance(ctx, ing, model.StageDone)
	log.Infof("[Processor] 文件处理成功完成, DocumentID: %s, 写入 %d 条记录", doc.ID, ing.RecordsStored)
	return ing, nil
}

func (p *Processor) buildRecords(doc model.RawDocument, chunks []model.TextChunk, vectors []model.EmbeddingVector) []model.IndexedRecord {
	records := make([]model.IndexedRecord, len(chunks))
	for i, c := range chunks {
		records[i] = model.IndexedRecord{
			ID:     RecordID(doc.ID, i),
			Vector: vectors[i],
			Metadata: map[string]string{
				model.MetaText:       c.Content,
				model.MetaDocumentID: doc.ID,
				model.MetaFileName:   doc.FileName,
				model.MetaChunkIndex: strconv.Itoa(i),
				model.MetaModel:      p.embedder.Model(),
			},
		}
	}
	return records
}

// Answer 用入库时相同的向量模型编码查询文本，返回最相似的至多 k 个分块。
// 没有命中是正常结果，返回空切片。
func (p *Processor) Answer(ctx context.Context, query string, k int) (model.QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k 必须大于 0, 实际为 %d", model.ErrInvalidConfig, k)
	}
	vector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		log.Errorf("[Processor] 查询向量化失败, error: %v", err)
		return nil, err
	}
	result, err := p.store.Query(ctx, vector, k, true)
	if err != nil {
		return nil, err
	}
	log.Debugf("[Processor] 查询返回 %d 条结果, k: %d", len(result), k)
	return result, nil
}

func (p *Processor) advance(ctx context.Context, ing *model.Ingestion, stage model.Stage) {
	ing.State = stage
	p.reporter.Report(ctx, model.Status{Ingestion: *ing, UpdatedAt: time.Now()})
}

func (p *Processor) fail(ctx context.Context, ing *model.Ingestion, stage model.Stage, err error) (*model.Ingestion, error) {
	stageErr := &StageError{Stage: stage, Kind: model.ErrorKind(err), Err: err}
	ing.State = model.StageFailed
	ing.FailedStage = stage
	ing.Reason = stageErr.Kind
	ing.Detail = err.Error()
	log.Errorf("[Processor] 文件处理失败, DocumentID: %s, 阶段: %s, 原因: %s, error: %v", ing.DocumentID, stage, stageErr.Kind, err)
	p.reporter.Report(ctx, model.Status{Ingestion: *ing, UpdatedAt: time.Now()})
	return ing, stageErr
}
