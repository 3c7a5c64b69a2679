package service

import (
	"context"

	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/pkg/log"
)

// StatusReporter 将入库状态写入 Redis，并在终止状态时更新文档登记表。
type StatusReporter struct {
	statusRepo repository.StatusRepository
	docRepo    repository.DocumentRepository
}

func NewStatusReporter(statusRepo repository.StatusRepository, docRepo repository.DocumentRepository) *StatusReporter {
	return &StatusReporter{statusRepo: statusRepo, docRepo: docRepo}
}

// Report 实现 pipeline.Reporter。写入失败只记录日志，不影响入库。
func (r *StatusReporter) Report(ctx context.Context, status model.Status) {
	if err := r.statusRepo.Save(ctx, status); err != nil {
		log.Warnf("[StatusReporter] 保存实时状态失败, DocumentID: %s, error: %v", status.DocumentID, err)
	}
	if !status.State.Terminal() {
		return
	}
	if err := r.docRepo.UpdateResult(status.Ingestion); err != nil {
		log.Warnf("[StatusReporter] 更新文档登记表失败, DocumentID: %s, error: %v", status.DocumentID, err)
	}
}
