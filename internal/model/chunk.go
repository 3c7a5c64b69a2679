// Package model 定义了检索流水线中流转的数据结构。
package model

// 元数据中固定使用的键。
const (
	MetaText       = "text"
	MetaDocumentID = "document_id"
	MetaFileName   = "file_name"
	MetaChunkIndex = "chunk_index"
	MetaModel      = "model"
)

// Range 表示文本中的 [Start, End) 区间，单位为字符（rune）。
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TextChunk 是文档切块后的一段连续子串。
type TextChunk struct {
	ID           string `json:"id"`
	Content      string `json:"content"`
	SourceOffset *Range `json:"sourceOffset,omitempty"`
}

// EmbeddingVector 是同一个向量模型产生的定长向量。
type EmbeddingVector []float32

// IndexedRecord 是写入向量库的一条记录，id 在索引内唯一。
type IndexedRecord struct {
	ID       string            `json:"id"`
	Vector   EmbeddingVector   `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// Text 返回记录元数据中保存的原文。
func (r IndexedRecord) Text() string {
	return r.Metadata[MetaText]
}

// Match 是一次相似度查询的单条命中。
type Match struct {
	RecordID string            `json:"recordId"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResult 按相似度降序排列，长度不超过请求的 k。
type QueryResult []Match
