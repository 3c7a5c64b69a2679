package main

import (
	"context"
	"os"
	"path/filepath"

	"ask-pdf-go/internal/model"
	"ask-pdf-go/internal/pipeline"
	"ask-pdf-go/internal/repository"
	"ask-pdf-go/internal/service"
	"ask-pdf-go/pkg/log"
)

// initSeedFiles 扫描目录下文件并通过标准上传流程导入（幂等）。
func initSeedFiles(ctx context.Context, dir string, docService service.DocumentService, docRepo repository.DocumentRepository) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(data) == 0 {
			log.Infof("initSeedFiles: 空文件跳过: %s", path)
			return nil
		}

		// 幂等检查：已完成则跳过
		docID := pipeline.DocumentID(data)
		if doc, err := docRepo.FindByDocumentID(docID); err == nil && doc.State == string(model.StageDone) {
			log.Infof("initSeedFiles: 已存在，跳过: %s (md5=%s)", d.Name(), docID)
			return nil
		}

		ing, err := docService.Upload(ctx, d.Name(), data)
		if err != nil {
			log.Warnf("initSeedFiles: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("initSeedFiles: 导入完成: %s, 状态: %s", d.Name(), ing.State)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
