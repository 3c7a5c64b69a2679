package vectorstore

import (
	"context"
	"testing"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChromemClient(t *testing.T, path string) *Client {
	t.Helper()
	backend, err := NewChromemBackend(config.ChromemConfig{Path: path, Collection: "test"})
	require.NoError(t, err)
	return NewClient(backend, 2, 3)
}

func record(id, text string, vec ...float32) model.IndexedRecord {
	return model.IndexedRecord{ID: id, Vector: vec, Metadata: map[string]string{model.MetaText: text}}
}

func TestChromemEmptyIndexReturnsEmpty(t *testing.T) {
	c := newChromemClient(t, "")
	result, err := c.Query(context.Background(), model.EmbeddingVector{1, 0, 0}, 5, true)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestChromemUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	c := newChromemClient(t, "")

	n, err := c.Upsert(ctx, []model.IndexedRecord{
		record("a", "alpha", 1, 0, 0),
		record("b", "beta", 0, 1, 0),
		record("c", "gamma", 0.9, 0.1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	result, err := c.Query(ctx, model.EmbeddingVector{1, 0, 0}, 10, true)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "a", result[0].RecordID)
	assert.Equal(t, "c", result[1].RecordID)
	assert.Equal(t, "alpha", result[0].Metadata[model.MetaText])
	assert.InDelta(t, 1.0, result[0].Score, 1e-5)
	assert.GreaterOrEqual(t, result[1].Score, result[2].Score)
}

func TestChromemUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	c := newChromemClient(t, "")

	_, err := c.Upsert(ctx, []model.IndexedRecord{record("a", "old", 1, 0, 0)})
	require.NoError(t, err)
	_, err = c.Upsert(ctx, []model.IndexedRecord{record("a", "new", 0, 1, 0)})
	require.NoError(t, err)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := c.Query(ctx, model.EmbeddingVector{0, 1, 0}, 1, true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "new", result[0].Metadata[model.MetaText])
}

func TestChromemRejectsZeroVector(t *testing.T) {
	c := newChromemClient(t, "")
	_, err := c.Upsert(context.Background(), []model.IndexedRecord{record("z", "...", 0, 0, 0)})
	assert.ErrorIs(t, err, model.ErrInvalidRecord)
}

func TestChromemZeroQueryReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	c := newChromemClient(t, "")
	_, err := c.Upsert(ctx, []model.IndexedRecord{record("a", "alpha", 1, 0, 0)})
	require.NoError(t, err)

	result, err := c.Query(ctx, model.EmbeddingVector{0, 0, 0}, 3, true)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestChromemPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := newChromemClient(t, dir)
	_, err := c.Upsert(ctx, []model.IndexedRecord{record("a", "alpha", 1, 0, 0), record("b", "beta", 0, 1, 0)})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened := newChromemClient(t, dir)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
