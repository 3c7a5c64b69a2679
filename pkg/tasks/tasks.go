// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// IngestionTask represents an asynchronous ingestion job for a document staged in object storage.
type IngestionTask struct {
	TaskID     string    `json:"task_id"`
	DocumentID string    `json:"document_id"`
	ObjectName string    `json:"object_name"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewIngestionTask builds a task with a fresh TaskID.
func NewIngestionTask(documentID, objectName, fileName string, size int64) IngestionTask {
	return IngestionTask{
		TaskID:     uuid.NewString(),
		DocumentID: documentID,
		ObjectName: objectName,
		FileName:   fileName,
		Size:       size,
		EnqueuedAt: time.Now().UTC(),
	}
}
