package pipeline

import (
	"context"

	"ask-pdf-go/internal/model"
)

// Reporter 接收入库过程中的每一次状态变更。实现不应阻塞流水线，失败只记录日志。
type Reporter interface {
	Report(ctx context.Context, status model.Status)
}

// ReporterFunc 让普通函数实现 Reporter。
type ReporterFunc func(ctx context.Context, status model.Status)

func (f ReporterFunc) Report(ctx context.Context, status model.Status) {
	f(ctx, status)
}

// NopReporter 丢弃所有状态。
type NopReporter struct{}

func (NopReporter) Report(context.Context, model.Status) {}

// Reporters 将状态依次转发给多个 Reporter。
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, status model.Status) {
	for _, r := range rs {
		r.Report(ctx, status)
	}
}
