package service

import (
	"context"
	"strings"
	"testing"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnswerer struct {
	query  string
	k      int
	result model.QueryResult
	err    error
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, k int) (model.QueryResult, error) {
	f.query, f.k = query, k
	return f.result, f.err
}

func TestSearch(t *testing.T) {
	a := &fakeAnswerer{result: model.QueryResult{
		{RecordID: "doc_0", Score: 0.9, Metadata: map[string]string{
			model.MetaText: strings.Repeat("文", 20), model.MetaDocumentID: "doc",
			model.MetaFileName: "a.pdf", model.MetaChunkIndex: "0",
		}},
		{RecordID: "doc_3", Score: 0.4, Metadata: map[string]string{model.MetaText: "short"}},
	}}
	svc := NewSearchService(a, config.SearchConfig{TopK: 5, SnippetLength: 10})

	results, err := svc.Search(context.Background(), "  what is AAAA  ", 0)
	require.NoError(t, err)
	assert.Equal(t, "what is AAAA", a.query)
	assert.Equal(t, 5, a.k)

	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "a.pdf", results[0].FileName)
	assert.Equal(t, "0", results[0].ChunkIndex)
	assert.Equal(t, strings.Repeat("文", 10), results[0].Snippet)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, "short", results[1].Snippet)

	_, err = svc.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, a.k)
}

func TestSearchEmptyQuery(t *testing.T) {
	a := &fakeAnswerer{}
	svc := NewSearchService(a, config.SearchConfig{TopK: 5})
	_, err := svc.Search(context.Background(), " \n\t", 3)
	assert.ErrorIs(t, err, model.ErrEmptyQuery)
	assert.Empty(t, a.query)
}

func TestSearchNoMatchesIsNotError(t *testing.T) {
	svc := NewSearchService(&fakeAnswerer{result: model.QueryResult{}}, config.SearchConfig{TopK: 5})
	results, err := svc.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
