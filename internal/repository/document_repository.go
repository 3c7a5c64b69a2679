// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"sort"
	"sync"
	"time"

	"ask-pdf-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// DocumentRepository 接口定义了文档登记表的数据持久化操作。
type DocumentRepository interface {
	Upsert(doc *model.Document) error
	UpdateResult(ing model.Ingestion) error
	FindByDocumentID(documentID string) (*model.Document, error)
	List(limit, offset int) ([]model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Upsert 按 document_id 插入或更新记录，重新入库同一文档时覆盖上一次的结果。
func (r *documentRepository) Upsert(doc *model.Document) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "total_size", "state", "failed_stage", "reason",
			"chunk_count", "records_stored", "model_version", "updated_at",
		}),
	}).Create(doc).Error
}

// UpdateResult 更新文档最近一次入库的状态和计数。
func (r *documentRepository) UpdateResult(ing model.Ingestion) error {
	return r.db.Model(&model.Document{}).Where("document_id = ?", ing.DocumentID).Updates(map[string]interface{}{
		"state":          string(ing.State),
		"failed_stage":   string(ing.FailedStage),
		"reason":         ing.Reason,
		"chunk_count":    ing.ChunkCount,
		"records_stored": ing.RecordsStored,
	}).Error
}

// FindByDocumentID 根据文档 id 查找记录。
func (r *documentRepository) FindByDocumentID(documentID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("document_id = ?", documentID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 按更新时间倒序分页列出文档。
func (r *documentRepository) List(limit, offset int) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, err
}

// memoryDocumentRepository 在未配置 MySQL 时使用，进程退出后丢失。
type memoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]model.Document
	seq  uint
}

// NewMemoryDocumentRepository 创建一个进程内的 DocumentRepository。
func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{docs: map[string]model.Document{}}
}

func (r *memoryDocumentRepository) Upsert(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.docs[doc.DocumentID]; ok {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else {
		r.seq++
		doc.ID = r.seq
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	r.docs[doc.DocumentID] = *doc
	return nil
}

func (r *memoryDocumentRepository) UpdateResult(ing model.Ingestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[ing.DocumentID]
	if !ok {
		return nil
	}
	doc.State = string(ing.State)
	doc.FailedStage = string(ing.FailedStage)
	doc.Reason = ing.Reason
	doc.ChunkCount = ing.ChunkCount
	doc.RecordsStored = ing.RecordsStored
	doc.UpdatedAt = time.Now()
	r.docs[ing.DocumentID] = doc
	return nil
}

func (r *memoryDocumentRepository) FindByDocumentID(documentID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (r *memoryDocumentRepository) List(limit, offset int) ([]model.Document, error) {
	r.mu.RLock()
	docs := make([]model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, d)
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	if offset >= len(docs) {
		return []model.Document{}, nil
	}
	docs = docs[offset:]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}
