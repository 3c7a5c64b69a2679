package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ask-pdf-go/internal/chunker"
	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/embedding"
	"ask-pdf-go/pkg/extractor"
	"ask-pdf-go/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider 包装 hash provider 并记录调用次数。
type countingProvider struct {
	embedding.Provider
	calls int
	err   error
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Provider.Embed(ctx, texts)
}

// flakyBackend 是内存向量库，可以在第 failOn 个批次上模拟连接失败。
type flakyBackend struct {
	mu      sync.Mutex
	records map[string]model.IndexedRecord
	calls   int
	failOn  int
}

func (b *flakyBackend) Name() string { return "flaky" }

func (b *flakyBackend) Upsert(_ context.Context, records []model.IndexedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls == b.failOn {
		return errors.New("dial tcp 127.0.0.1:9200: connection refused")
	}
	for _, r := range records {
		b.records[r.ID] = r
	}
	return nil
}

func (b *flakyBackend) Query(context.Context, model.EmbeddingVector, int, bool) ([]model.Match, error) {
	return nil, nil
}

func (b *flakyBackend) Count(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records), nil
}

func (b *flakyBackend) Close() error { return nil }

type recordingReporter struct {
	states []model.Stage
	last   model.Status
}

func (r *recordingReporter) Report(_ context.Context, status model.Status) {
	r.states = append(r.states, status.State)
	r.last = status
}

type fixture struct {
	processor *Processor
	provider  *countingProvider
	reporter  *recordingReporter
	store     *vectorstore.Client
}

func newFixture(t *testing.T, backend vectorstore.Backend, batchSize int) *fixture {
	t.Helper()
	hash, err := embedding.NewHashProvider(64)
	require.NoError(t, err)
	provider := &countingProvider{Provider: hash}
	embedder := embedding.NewClient(config.EmbeddingConfig{Model: "hash-64", BatchSize: 8}, provider)

	if backend == nil {
		backend, err = vectorstore.NewChromemBackend(config.ChromemConfig{Collection: "test"})
		require.NoError(t, err)
	}
	store := vectorstore.NewClient(backend, batchSize, 64)

	splitter, err := chunker.New(9, 2)
	require.NoError(t, err)
	reporter := &recordingReporter{}
	return &fixture{
		processor: NewProcessor(extractor.NewRegistry(config.TikaConfig{}), splitter, embedder, store, reporter),
		provider:  provider,
		reporter:  reporter,
		store:     store,
	}
}

var happyPath = []model.Stage{
	model.StageReceived, model.StageExtracted, model.StageChunked,
	model.StageEmbedded, model.StageStored, model.StageDone,
}

func TestIngestAndAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, 100)
	data := []byte("AAAA BBBB CCCC DDDD")

	ing, err := f.processor.Ingest(ctx, model.RawDocument{FileName: "letters.txt", Data: data})
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, ing.State)
	assert.Equal(t, 3, ing.ChunkCount)
	assert.Equal(t, 3, ing.RecordsStored)
	assert.Equal(t, DocumentID(data), ing.DocumentID)
	assert.Equal(t, happyPath, f.reporter.states)

	result, err := f.processor.Answer(ctx, "AAAA", 1)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "AAAA BBBB", result[0].Metadata[model.MetaText])
	assert.Equal(t, RecordID(ing.DocumentID, 0), result[0].RecordID)
	assert.Equal(t, "letters.txt", result[0].Metadata[model.MetaFileName])
	assert.Equal(t, "0", result[0].Metadata[model.MetaChunkIndex])
	assert.Equal(t, "hash-64", result[0].Metadata[model.MetaModel])

	all, err := f.processor.Answer(ctx, "AAAA", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestReingestSameDocumentOverwrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, 100)
	doc := model.RawDocument{FileName: "letters.txt", Data: []byte("AAAA BBBB CCCC DDDD")}

	_, err := f.processor.Ingest(ctx, doc)
	require.NoError(t, err)
	_, err = f.processor.Ingest(ctx, doc)
	require.NoError(t, err)
	_, err = f.processor.Ingest(ctx, model.RawDocument{FileName: "other.txt", Data: []byte("EEEE FFFF")})
	require.NoError(t, err)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "同一文档重复入库覆盖自身记录, 不同文档互不覆盖")
}

func TestIngestEmptyDocument(t *testing.T) {
	backend := &flakyBackend{records: map[string]model.IndexedRecord{}}
	f := newFixture(t, backend, 100)

	ing, err := f.processor.Ingest(context.Background(), model.RawDocument{FileName: "empty.txt", Data: nil})
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, ing.State)
	assert.Zero(t, ing.ChunkCount)
	assert.Zero(t, ing.RecordsStored)
	assert.Equal(t, happyPath, f.reporter.states)
	assert.Zero(t, f.provider.calls, "空文档不应加载向量模型")
	assert.Zero(t, backend.calls, "空文档不应访问向量库")
}

func TestIngestStoreUnavailableKeepsEarlierBatches(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{records: map[string]model.IndexedRecord{}, failOn: 2}
	f := newFixture(t, backend, 1)

	ing, err := f.processor.Ingest(ctx, model.RawDocument{FileName: "letters.txt", Data: []byte("AAAA BBBB CCCC DDDD")})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, model.StageStored, stageErr.Stage)
	assert.Equal(t, "StoreUnavailable", stageErr.Kind)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)

	assert.Equal(t, model.StageFailed, ing.State)
	assert.Equal(t, model.StageStored, ing.FailedStage)
	assert.Equal(t, "StoreUnavailable", ing.Reason)
	assert.Equal(t, 1, ing.RecordsStored)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "失败前提交的批次保留在索引中")
	assert.Equal(t, model.StageFailed, f.reporter.last.State)
}

func TestIngestExtractionFailure(t *testing.T) {
	f := newFixture(t, nil, 100)

	ing, err := f.processor.Ingest(context.Background(), model.RawDocument{FileName: "slides.pptx", Data: []byte("x")})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, model.StageExtracted, stageErr.Stage)
	assert.Equal(t, "ExtractionError", ing.Reason)
	assert.Equal(t, []model.Stage{model.StageReceived, model.StageFailed}, f.reporter.states)
	assert.Zero(t, f.provider.calls)
}

func TestIngestModelUnavailable(t *testing.T) {
	f := newFixture(t, nil, 100)
	f.provider.err = errors.New("connection refused")

	ing, err := f.processor.Ingest(context.Background(), model.RawDocument{FileName: "a.txt", Data: []byte("hello")})
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
	assert.Equal(t, model.StageEmbedded, ing.FailedStage)
	assert.Equal(t, "ModelUnavailable", ing.Reason)
	assert.Equal(t, 1, ing.ChunkCount)
}

func TestIngestSymbolOnlyChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, 100)

	ing, err := f.processor.Ingest(ctx, model.RawDocument{FileName: "rules.txt", Data: []byte("AAAA BBBB ---------------- CCCC")})
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, ing.State)
	assert.Equal(t, ing.ChunkCount, ing.RecordsStored)
	assert.Equal(t, happyPath, f.reporter.states)
}

func TestAnswerWithoutWords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, 100)
	_, err := f.processor.Ingest(ctx, model.RawDocument{FileName: "ab.txt", Data: []byte("AAAA BBBB")})
	require.NoError(t, err)

	result, err := f.processor.Answer(ctx, "", 3)
	require.NoError(t, err)
	assert.Empty(t, result)

	_, err = f.processor.Answer(ctx, "???", 3)
	require.NoError(t, err)
}

func TestAnswerOnEmptyIndex(t *testing.T) {
	f := newFixture(t, nil, 100)
	result, err := f.processor.Answer(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, result)

	_, err = f.processor.Answer(context.Background(), "anything", 0)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func TestReporters(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	var fromFunc []model.Stage
	rs := Reporters{a, b, NopReporter{}, ReporterFunc(func(_ context.Context, s model.Status) {
		fromFunc = append(fromFunc, s.State)
	})}
	rs.Report(context.Background(), model.Status{Ingestion: model.Ingestion{State: model.StageDone}})
	assert.Equal(t, []model.Stage{model.StageDone}, a.states)
	assert.Equal(t, []model.Stage{model.StageDone}, b.states)
	assert.Equal(t, []model.Stage{model.StageDone}, fromFunc)
}
