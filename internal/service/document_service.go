// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/pipeline"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/pkg/log"
	"ask-pdf-go/pkg/storage"
	"ask-pdf-go/pkg/tasks"
)

// Ingester 执行一次完整的文档入库。
type Ingester interface {
	Ingest(ctx context.Context, doc model.RawDocument) (*model.Ingestion, error)
}

// ObjectStore 暂存异步入库的原始文件。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte) error
	Get(ctx context.Context, objectName string) ([]byte, error)
	Remove(ctx context.Context, objectName string) error
}

// TaskQueue 投递异步入库任务。
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.IngestionTask) error
}

// DocumentService 接口定义了文档上传和入库相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileName string, data []byte) (*model.Ingestion, error)
	ProcessTask(ctx context.Context, task tasks.IngestionTask) error
	GetStatus(ctx context.Context, documentID string) (*model.Status, error)
	List(ctx context.Context, limit, offset int) ([]model.Document, error)
}

type documentService struct {
	cfg          config.UploadConfig
	ingester     Ingester
	docRepo      repository.DocumentRepository
	statusRepo   repository.StatusRepository
	reporter     pipeline.Reporter
	objects      ObjectStore
	queue        TaskQueue
	modelVersion string
}

// NewDocumentService 创建一个新的 DocumentService 实例。同步模式下 objects 和 queue 可以为 nil。
func NewDocumentService(
	cfg config.UploadConfig,
	ingester Ingester,
	docRepo repository.DocumentRepository,
	statusRepo repository.StatusRepository,
	reporter pipeline.Reporter,
	objects ObjectStore,
	queue TaskQueue,
	modelVersion string,
) DocumentService {
	if reporter == nil {
		reporter = pipeline.NopReporter{}
	}
	return &documentService{
		cfg:          cfg,
		ingester:     ingester,
		docRepo:      docRepo,
		statusRepo:   statusRepo,
		reporter:     reporter,
		objects:      objects,
		queue:        queue,
		modelVersion: modelVersion,
	}
}

// Upload 登记文档并触发入库。同步模式下返回最终结果；异步模式下返回 Received 状态，结果通过 GetStatus 查询。
func (s *documentService) Upload(ctx context.Context, fileName string, data []byte) (*model.Ingestion, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: 文件名不能为空", model.ErrExtraction)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes() {
		return nil, fmt.Errorf("%w: 文件大小 %d 字节超过上限 %d KB", model.ErrFileTooLarge, len(data), s.cfg.MaxSizeKB)
	}

	docID := pipeline.DocumentID(data)
	log.Infof("[DocumentService] 收到上传, DocumentID: %s, FileName: %s, 大小: %d字节, async: %t", docID, fileName, len(data), s.cfg.Async)
	doc := &model.Document{
		DocumentID:   docID,
		FileName:     fileName,
		TotalSize:    int64(len(data)),
		State:        string(model.StageReceived),
		ModelVersion: s.modelVersion,
	}
	if err := s.docRepo.Upsert(doc); err != nil {
		log.Errorf("[DocumentService] 登记文档失败, DocumentID: %s, error: %v", docID, err)
		return nil, fmt.Errorf("登记文档失败: %w", err)
	}

	if !s.cfg.Async {
		return s.ingester.Ingest(ctx, model.RawDocument{ID: docID, FileName: fileName, Data: data})
	}

	objectName := storage.ObjectName(docID, fileName)
	if err := s.objects.Put(ctx, objectName, data); err != nil {
		return nil, s.abort(ctx, docID, fileName, fmt.Errorf("暂存文件失败: %w", err))
	}
	task := tasks.NewIngestionTask(docID, objectName, fileName, int64(len(data)))
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if rmErr := s.objects.Remove(ctx, objectName); rmErr != nil {
			log.Warnf("[DocumentService] 清理暂存文件失败, Object: %s, error: %v", objectName, rmErr)
		}
		return nil, s.abort(ctx, docID, fileName, fmt.Errorf("投递入库任务失败: %w", err))
	}
	log.Infof("[DocumentService] 入库任务已投递, TaskID: %s, DocumentID: %s", task.TaskID, docID)

	ing := &model.Ingestion{DocumentID: docID, FileName: fileName, State: model.StageReceived}
	s.reporter.Report(ctx, model.Status{Ingestion: *ing, UpdatedAt: time.Now()})
	return ing, nil
}

// abort 将未能进入流水线的文档标记为失败。
func (s *documentService) abort(ctx context.Context, docID, fileName string, err error) error {
	log.Errorf("[DocumentService] 文档 %s 入库中止: %v", docID, err)
	s.reporter.Report(ctx, model.Status{
		Ingestion: model.Ingestion{
			DocumentID:  docID,
			FileName:    fileName,
			State:       model.StageFailed,
			FailedStage: model.StageReceived,
			Reason:      model.ErrorKind(err),
			Detail:      err.Error(),
		},
		UpdatedAt: time.Now(),
	})
	return err
}

// ProcessTask 读取暂存文件并入库，无论成败都会删除暂存对象。
func (s *documentService) ProcessTask(ctx context.Context, task tasks.IngestionTask) error {
	data, err := s.objects.Get(ctx, task.ObjectName)
	if err != nil {
		return s.abort(ctx, task.DocumentID, task.FileName, fmt.Errorf("%w: 读取暂存文件失败: %v", model.ErrExtraction, err))
	}
	defer func() {
		if err := s.objects.Remove(ctx, task.ObjectName); err != nil {
			log.Warnf("[DocumentService] 删除暂存文件失败, Object: %s, error: %v", task.ObjectName, err)
		}
	}()

	_, err = s.ingester.Ingest(ctx, model.RawDocument{ID: task.DocumentID, FileName: task.FileName, Data: data})
	return err
}

// GetStatus 优先返回 Redis 中的实时状态，过期后回退到文档登记表。
func (s *documentService) GetStatus(ctx context.Context, documentID string) (*model.Status, error) {
	status, err := s.statusRepo.Get(ctx, documentID)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[DocumentService] 读取实时状态失败, DocumentID: %s, error: %v", documentID, err)
	}

	doc, err := s.docRepo.FindByDocumentID(documentID)
	if err != nil {
		return nil, err
	}
	return &model.Status{
		Ingestion: model.Ingestion{
			DocumentID:    doc.DocumentID,
			FileName:      doc.FileName,
			State:         model.Stage(doc.State),
			FailedStage:   model.Stage(doc.FailedStage),
			Reason:        doc.Reason,
			ChunkCount:    doc.ChunkCount,
			RecordsStored: doc.RecordsStored,
		},
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *documentService) List(_ context.Context, limit, offset int) ([]model.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.docRepo.List(limit, offset)
}
