package model

import "time"

// RawDocument 是一次入库请求的原始文档，只在本次请求内存在。
type RawDocument struct {
	// ID 为空时由流水线根据内容的 MD5 生成。
	ID       string
	FileName string
	Data     []byte
}

// Document 对应于数据库中的 documents 表，记录每个文档最近一次入库的结果。
type Document struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID    string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"documentId"`
	FileName      string    `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize     int64     `gorm:"not null" json:"totalSize"`
	State         string    `gorm:"type:varchar(20);not null" json:"state"`
	FailedStage   string    `gorm:"type:varchar(20)" json:"failedStage,omitempty"`
	Reason        string    `gorm:"type:text" json:"reason,omitempty"`
	ChunkCount    int       `gorm:"not null;default:0" json:"chunkCount"`
	RecordsStored int       `gorm:"not null;default:0" json:"recordsStored"`
	ModelVersion  string    `gorm:"type:varchar(100)" json:"modelVersion"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
