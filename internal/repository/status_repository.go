package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ask-pdf-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// StatusTTL 是实时入库状态在 Redis 中的保留时间。
const StatusTTL = 24 * time.Hour

// StatusRepository 保存每个文档最近一次的入库状态。
type StatusRepository interface {
	Save(ctx context.Context, status model.Status) error
	Get(ctx context.Context, documentID string) (*model.Status, error)
}

type statusRepository struct {
	redisClient *redis.Client
}

// NewStatusRepository 创建一个基于 Redis 的 StatusRepository。
func NewStatusRepository(redisClient *redis.Client) StatusRepository {
	return &statusRepository{redisClient: redisClient}
}

// StatusKey 返回文档状态在 Redis 中的 key。
func StatusKey(documentID string) string {
	return "ingest:status:" + documentID
}

func (r *statusRepository) Save(ctx context.Context, status model.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.redisClient.Set(ctx, StatusKey(status.DocumentID), data, StatusTTL).Err()
}

func (r *statusRepository) Get(ctx context.Context, documentID string) (*model.Status, error) {
	data, err := r.redisClient.Get(ctx, StatusKey(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var status model.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// memoryStatusRepository 在未配置 Redis 时使用，只保存在当前进程内。
type memoryStatusRepository struct {
	mu       sync.RWMutex
	statuses map[string]model.Status
}

// NewMemoryStatusRepository 创建一个进程内的 StatusRepository。
func NewMemoryStatusRepository() StatusRepository {
	return &memoryStatusRepository{statuses: map[string]model.Status{}}
}

func (r *memoryStatusRepository) Save(_ context.Context, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.DocumentID] = status
	return nil
}

func (r *memoryStatusRepository) Get(_ context.Context, documentID string) (*model.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &status, nil
}
