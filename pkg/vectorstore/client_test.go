package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ask-pdf-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBackend 记录每个批次，并可在指定批次上失败。
type memoryBackend struct {
	mu      sync.Mutex
	records map[string]model.IndexedRecord
	batches []int
	failOn  int
	failErr error
	queried int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{records: map[string]model.IndexedRecord{}}
}

func (m *memoryBackend) Name() string { return "memory" }

func (m *memoryBackend) Upsert(_ context.Context, records []model.IndexedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, len(records))
	if m.failOn == len(m.batches) {
		return m.failErr
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryBackend) Query(_ context.Context, vector model.EmbeddingVector, _ int, _ bool) ([]model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queried++
	out := make([]model.Match, 0, len(m.records))
	for _, r := range m.records {
		var dot float64
		for i := range vector {
			dot += float64(vector[i] * r.Vector[i])
		}
		out = append(out, model.Match{RecordID: r.ID, Score: dot, Metadata: r.Metadata})
	}
	return out, nil
}

func (m *memoryBackend) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memoryBackend) Close() error { return nil }

func makeRecords(n int) []model.IndexedRecord {
	out := make([]model.IndexedRecord, n)
	for i := range out {
		out[i] = model.IndexedRecord{
			ID:       fmt.Sprintf("doc_%d", i),
			Vector:   model.EmbeddingVector{float32(i), 1},
			Metadata: map[string]string{model.MetaText: fmt.Sprintf("chunk %d", i)},
		}
	}
	return out
}

func TestUpsertSplitsIntoBatches(t *testing.T) {
	backend := newMemoryBackend()
	c := NewClient(backend, 100, 2)

	n, err := c.Upsert(context.Background(), makeRecords(250))
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, []int{100, 100, 50}, backend.batches)
}

func TestUpsertPartialFailureKeepsEarlierBatches(t *testing.T) {
	backend := newMemoryBackend()
	backend.failOn = 2
	backend.failErr = errors.New("connection reset by peer")
	c := NewClient(backend, 100, 2)

	n, err := c.Upsert(context.Background(), makeRecords(250))
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, 100, n)
	assert.Equal(t, []int{100, 100}, backend.batches, "失败后不再提交后续批次")

	count, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestUpsertPropagatesInvalidRecord(t *testing.T) {
	backend := newMemoryBackend()
	backend.failOn = 1
	backend.failErr = fmt.Errorf("%w: mapper_parsing_exception", model.ErrInvalidRecord)
	c := NewClient(backend, 10, 0)

	n, err := c.Upsert(context.Background(), makeRecords(3))
	assert.ErrorIs(t, err, model.ErrInvalidRecord)
	assert.Zero(t, n)
}

func TestUpsertValidation(t *testing.T) {
	dup := makeRecords(3)
	dup[2].ID = dup[0].ID
	wrongDim := makeRecords(3)
	wrongDim[1].Vector = model.EmbeddingVector{1, 2, 3}
	noID := makeRecords(2)
	noID[1].ID = ""

	cases := []struct {
		name      string
		dimension int
		records   []model.IndexedRecord
	}{
		{"duplicate ids", 0, dup},
		{"inconsistent dimension", 0, wrongDim},
		{"configured dimension", 3, makeRecords(2)},
		{"empty id", 0, noID},
		{"empty vector", 0, []model.IndexedRecord{{ID: "x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newMemoryBackend()
			n, err := NewClient(backend, 100, tc.dimension).Upsert(context.Background(), tc.records)
			assert.ErrorIs(t, err, model.ErrInvalidRecord)
			assert.Zero(t, n)
			assert.Empty(t, backend.batches, "校验失败时不应提交任何批次")
		})
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	backend := newMemoryBackend()
	n, err := NewClient(backend, 100, 2).Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, backend.batches)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	c := NewClient(backend, 100, 2)

	_, err := c.Upsert(ctx, makeRecords(5))
	require.NoError(t, err)
	_, err = c.Upsert(ctx, makeRecords(5))
	require.NoError(t, err)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestQuerySortsAndTruncates(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	c := NewClient(backend, 100, 2)
	_, err := c.Upsert(ctx, makeRecords(10))
	require.NoError(t, err)

	result, err := c.Query(ctx, model.EmbeddingVector{1, 0}, 3, true)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, []string{"doc_9", "doc_8", "doc_7"}, []string{result[0].RecordID, result[1].RecordID, result[2].RecordID})
	assert.Equal(t, "chunk 9", result[0].Metadata[model.MetaText])

	result, err = c.Query(ctx, model.EmbeddingVector{1, 0}, 100, false)
	require.NoError(t, err)
	assert.Len(t, result, 10)
	for _, m := range result {
		assert.Nil(t, m.Metadata)
	}
}

func TestQueryRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	c := NewClient(backend, 100, 2)

	_, err := c.Query(ctx, model.EmbeddingVector{1, 0}, 0, true)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	_, err = c.Query(ctx, model.EmbeddingVector{1, 0, 0}, 1, true)
	assert.ErrorIs(t, err, model.ErrInvalidRecord)
	assert.Zero(t, backend.queried)
}

func TestQueryZeroVectorUnderCosine(t *testing.T) {
	ctx := context.Background()
	backend := newMemoryBackend()
	c := NewClient(backend, 100, 2)
	_, err := c.Upsert(ctx, makeRecords(3))
	require.NoError(t, err)

	result, err := c.Query(ctx, model.EmbeddingVector{0, 0}, 3, true)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Zero(t, backend.queried, "零向量查询不会发往后端")
}
