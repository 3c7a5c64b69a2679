package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/pipeline"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIngester 模拟流水线：直接走完状态机并向 reporter 推送终止状态。
type fakeIngester struct {
	reporter pipeline.Reporter
	docs     []model.RawDocument
	err      error
}

func (f *fakeIngester) Ingest(ctx context.Context, doc model.RawDocument) (*model.Ingestion, error) {
	f.docs = append(f.docs, doc)
	ing := &model.Ingestion{DocumentID: doc.ID, FileName: doc.FileName, State: model.StageDone, ChunkCount: 2, RecordsStored: 2}
	if f.err != nil {
		ing.State = model.StageFailed
		ing.FailedStage = model.StageStored
		ing.Reason = model.ErrorKind(f.err)
		ing.RecordsStored = 1
	}
	f.reporter.Report(ctx, model.Status{Ingestion: *ing, UpdatedAt: time.Now()})
	if f.err != nil {
		return ing, &pipeline.StageError{Stage: model.StageStored, Kind: ing.Reason, Err: f.err}
	}
	return ing, nil
}

type fakeObjects struct {
	objects map[string][]byte
	putErr  error
	removed []string
}

func (f *fakeObjects) Put(_ context.Context, name string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[name] = data
	return nil
}

func (f *fakeObjects) Get(_ context.Context, name string) ([]byte, error) {
	data, ok := f.objects[name]
	if !ok {
		return nil, errors.New("the specified key does not exist")
	}
	return data, nil
}

func (f *fakeObjects) Remove(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	delete(f.objects, name)
	return nil
}

type fakeQueue struct {
	tasks []tasks.IngestionTask
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task tasks.IngestionTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type serviceFixture struct {
	svc        DocumentService
	ingester   *fakeIngester
	objects    *fakeObjects
	queue      *fakeQueue
	docRepo    repository.DocumentRepository
	statusRepo repository.StatusRepository
}

func newServiceFixture(async bool) *serviceFixture {
	docRepo := repository.NewMemoryDocumentRepository()
	statusRepo := repository.NewMemoryStatusRepository()
	reporter := NewStatusReporter(statusRepo, docRepo)
	f := &serviceFixture{
		ingester:   &fakeIngester{reporter: reporter},
		objects:    &fakeObjects{objects: map[string][]byte{}},
		queue:      &fakeQueue{},
		docRepo:    docRepo,
		statusRepo: statusRepo,
	}
	cfg := config.UploadConfig{MaxSizeKB: 1, Async: async}
	f.svc = NewDocumentService(cfg, f.ingester, docRepo, statusRepo, reporter, f.objects, f.queue, "hash-64")
	return f
}

func TestUploadSync(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(false)
	data := []byte("AAAA BBBB CCCC DDDD")

	ing, err := f.svc.Upload(ctx, " letters.txt ", data)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, ing.State)
	require.Len(t, f.ingester.docs, 1)
	assert.Equal(t, pipeline.DocumentID(data), f.ingester.docs[0].ID)
	assert.Equal(t, "letters.txt", f.ingester.docs[0].FileName)

	doc, err := f.docRepo.FindByDocumentID(ing.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, string(model.StageDone), doc.State)
	assert.Equal(t, int64(len(data)), doc.TotalSize)
	assert.Equal(t, "hash-64", doc.ModelVersion)
	assert.Equal(t, 2, doc.RecordsStored)

	status, err := f.svc.GetStatus(ctx, ing.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, status.State)
}

func TestUploadSyncFailureIsRecorded(t *testing.T) {
	f := newServiceFixture(false)
	f.ingester.err = fmt.Errorf("%w: connection refused", model.ErrStoreUnavailable)

	ing, err := f.svc.Upload(context.Background(), "a.txt", []byte("hello"))
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, model.StageFailed, ing.State)

	doc, err := f.docRepo.FindByDocumentID(ing.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, string(model.StageFailed), doc.State)
	assert.Equal(t, string(model.StageStored), doc.FailedStage)
	assert.Equal(t, "StoreUnavailable", doc.Reason)
}

func TestUploadRejectsLargeFile(t *testing.T) {
	f := newServiceFixture(false)
	_, err := f.svc.Upload(context.Background(), "big.txt", make([]byte, 1025))
	assert.ErrorIs(t, err, model.ErrFileTooLarge)
	assert.Empty(t, f.ingester.docs)

	_, err = f.svc.Upload(context.Background(), "edge.txt", make([]byte, 1024))
	assert.NoError(t, err)
}

func TestUploadRejectsEmptyFileName(t *testing.T) {
	f := newServiceFixture(false)
	_, err := f.svc.Upload(context.Background(), "  ", []byte("x"))
	assert.ErrorIs(t, err, model.ErrExtraction)
}

func TestUploadAsyncAndProcessTask(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(true)
	data := []byte("AAAA BBBB CCCC DDDD")

	ing, err := f.svc.Upload(ctx, "letters.txt", data)
	require.NoError(t, err)
	assert.Equal(t, model.StageReceived, ing.State)
	assert.Empty(t, f.ingester.docs, "异步模式不在请求内入库")
	require.Len(t, f.queue.tasks, 1)

	task := f.queue.tasks[0]
	assert.Equal(t, ing.DocumentID, task.DocumentID)
	assert.Equal(t, data, f.objects.objects[task.ObjectName])

	status, err := f.svc.GetStatus(ctx, ing.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReceived, status.State)

	require.NoError(t, f.svc.ProcessTask(ctx, task))
	require.Len(t, f.ingester.docs, 1)
	assert.Equal(t, data, f.ingester.docs[0].Data)
	assert.Equal(t, []string{task.ObjectName}, f.objects.removed)

	status, err = f.svc.GetStatus(ctx, ing.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, status.State)
}

func TestUploadAsyncEnqueueFailure(t *testing.T) {
	f := newServiceFixture(true)
	f.queue.err = errors.New("kafka: leader not available")

	_, err := f.svc.Upload(context.Background(), "a.txt", []byte("hello"))
	require.Error(t, err)
	assert.Empty(t, f.objects.objects, "投递失败后清理暂存文件")

	status, err := f.svc.GetStatus(context.Background(), pipeline.DocumentID([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, status.State)
	assert.Equal(t, model.StageReceived, status.FailedStage)
}

func TestProcessTaskMissingObject(t *testing.T) {
	f := newServiceFixture(true)
	task := tasks.NewIngestionTask("abc", "staging/abc/a.txt", "a.txt", 5)

	err := f.svc.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, model.ErrExtraction)
	assert.Empty(t, f.ingester.docs)

	status, err := f.statusRepo.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ExtractionError", status.Reason)
}

func TestGetStatusFallsBackToRegistry(t *testing.T) {
	f := newServiceFixture(false)
	require.NoError(t, f.docRepo.Upsert(&model.Document{DocumentID: "old", FileName: "old.pdf", State: string(model.StageDone), ChunkCount: 7}))

	status, err := f.svc.GetStatus(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, status.State)
	assert.Equal(t, 7, status.ChunkCount)

	_, err = f.svc.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(false)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Upload(ctx, fmt.Sprintf("%d.txt", i), []byte(fmt.Sprintf("doc %d", i)))
		require.NoError(t, err)
	}
	docs, err := f.svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}
