package model

// SearchResponseDTO 定义了返回给前端的检索结果结构。
type SearchResponseDTO struct {
	Rank       int     `json:"rank"`
	RecordID   string  `json:"recordId"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	ChunkIndex string  `json:"chunkIndex"`
	Snippet    string  `json:"snippet"`
}
