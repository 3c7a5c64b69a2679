package model

import "errors"

// 错误分类。各组件使用 fmt.Errorf("%w: ...", ErrXxx) 包装，调用方通过 errors.Is 判断。
var (
	// ErrInvalidConfig 表示切块参数等配置非法。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrExtraction 表示文档无法读取或已损坏。
	ErrExtraction = errors.New("extraction error")
	// ErrModelUnavailable 表示向量模型无法加载。
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrEmbedding 表示输入文本无法向量化。
	ErrEmbedding = errors.New("embedding error")
	// ErrInvalidRecord 表示记录被向量库拒绝（维度错误、id 冲突等）。
	ErrInvalidRecord = errors.New("invalid record")
	// ErrStoreUnavailable 表示向量库连接失败或超时。
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrFileTooLarge = errors.New("file too large")
	ErrEmptyQuery   = errors.New("empty query")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrExtraction, "ExtractionError"},
	{ErrModelUnavailable, "ModelUnavailable"},
	{ErrEmbedding, "EmbeddingError"},
	{ErrInvalidRecord, "InvalidRecord"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrFileTooLarge, "FileTooLarge"},
	{ErrEmptyQuery, "EmptyQuery"},
}

// ErrorKind 返回错误在分类中的名称，未归类的错误返回 "Internal"。
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
