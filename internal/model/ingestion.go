package model

import "time"

// Stage 是入库状态机中的状态。
type Stage string

const (
	StageReceived  Stage = "Received"
	StageExtracted Stage = "Extracted"
	StageChunked   Stage = "Chunked"
	StageEmbedded  Stage = "Embedded"
	StageStored    Stage = "Stored"
	StageDone      Stage = "Done"
	StageFailed    Stage = "Failed"
)

// Terminal 判断状态是否为终止状态。
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Ingestion 描述一次入库的结果。State 为 Failed 时 FailedStage 记录正在进入的阶段。
type Ingestion struct {
	DocumentID    string `json:"documentId"`
	FileName      string `json:"fileName"`
	State         Stage  `json:"state"`
	FailedStage   Stage  `json:"failedStage,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	ChunkCount    int    `json:"chunkCount"`
	RecordsStored int    `json:"recordsStored"`
}

// Status 是推送给展示层的单次状态变更通知。
type Status struct {
	Ingestion
	UpdatedAt time.Time `json:"updatedAt"`
}
