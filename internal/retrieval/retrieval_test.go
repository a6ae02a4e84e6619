package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

type fakeStore struct {
	ftsHits      []repo.FtsHit
	titleFtsHits []repo.FtsHit
	chunks       map[string][]repo.Chunk
}

func (f *fakeStore) SearchFts(query string, limit int) ([]repo.FtsHit, error) { return f.ftsHits, nil }
func (f *fakeStore) SearchTitleFts(query string, limit int) ([]repo.FtsHit, error) {
	return f.titleFtsHits, nil
}
func (f *fakeStore) ListChunksByFileId(fileID string) ([]repo.Chunk, error) {
	return f.chunks[fileID], nil
}

type fakeVectorStore struct {
	searchResults []capability.VectorSearchResult
	bySourcePath  map[string][]capability.VectorRow
}

func (f *fakeVectorStore) Upsert(ctx context.Context, rows []capability.VectorRow) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, opts capability.VectorSearchOptions) ([]capability.VectorSearchResult, error) {
	return f.searchResults, nil
}
func (f *fakeVectorStore) ListBySourcePath(ctx context.Context, path string) ([]capability.VectorRow, error) {
	return f.bySourcePath[path], nil
}
func (f *fakeVectorStore) DeleteBySourcePath(ctx context.Context, path string) error { return nil }
func (f *fakeVectorStore) Destroy(ctx context.Context) error                        { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (stubEmbedder) Dimensions() int { return 3 }

type passthroughReranker struct {
	called       bool
	receivedOpts capability.RerankOptions
}

func (p *passthroughReranker) Rerank(ctx context.Context, query string, rows []capability.RerankRow, opts capability.RerankOptions) ([]capability.RerankRow, error) {
	p.called = true
	p.receivedOpts = opts
	return rows, nil
}

type stubParser struct{ text string }

func (s stubParser) ParseStream(ctx context.Context, r []byte) ([]capability.ParsedSpan, error) {
	return nil, nil
}
func (s stubParser) ReadRange(ctx context.Context, path string, start, end int) (string, error) {
	return s.text, nil
}

func TestSearchTitleOnlyBypassesEmbeddingAndVectorSearch(t *testing.T) {
	store := &fakeStore{
		titleFtsHits: []repo.FtsHit{
			{SourcePath: "/a.md", Score: 1.0},
			{SourcePath: "/b.md", Score: 0.2},
		},
	}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "should-not-appear"},
	}}
	p := New(store, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.Search(context.Background(), "knowdisk", Options{TitleOnly: true, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, r.SourcePath, r.ChunkID)
		assert.Equal(t, r.SourcePath, r.ChunkText)
	}
	// lower bm25 score normalizes to a higher final score, so /b.md ranks first
	assert.Equal(t, "/b.md", results[0].SourcePath)
}

func TestSearchHybridVectorRowsWinConflicts(t *testing.T) {
	store := &fakeStore{
		ftsHits: []repo.FtsHit{
			{ChunkID: "c1", SourcePath: "/a.md", Text: "fts text for c1", Score: 5.0},
		},
	}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "c1", Score: 0.9, Metadata: capability.VectorRowMetadata{SourcePath: "/a.md", ChunkText: "vector text for c1"}},
	}}
	p := New(store, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.Search(context.Background(), "q", Options{TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "vector text for c1", results[0].ChunkText)
	assert.Equal(t, float64(float32(0.9)), results[0].Score)
}

func TestSearchHybridFtsOnlyRowsGetSyntheticScore(t *testing.T) {
	store := &fakeStore{
		ftsHits: []repo.FtsHit{
			{ChunkID: "c-fts", SourcePath: "/b.md", Text: "lexical only", Score: 3.0},
		},
	}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "c-vec", Score: 0.5, Metadata: capability.VectorRowMetadata{SourcePath: "/c.md", ChunkText: "vector only"}},
	}}
	p := New(store, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.Search(context.Background(), "q", Options{TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var ftsResult *Result
	for i := range results {
		if results[i].ChunkID == "c-fts" {
			ftsResult = &results[i]
		}
	}
	require.NotNil(t, ftsResult)
	assert.InDelta(t, 1.0/(1.0+3.0), ftsResult.Score, 1e-9)
}

func TestSearchHybridTieBreaksByAscendingChunkID(t *testing.T) {
	store := &fakeStore{}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "c-zzz", Score: 0.5, Metadata: capability.VectorRowMetadata{SourcePath: "/a.md"}},
		{ChunkID: "c-aaa", Score: 0.5, Metadata: capability.VectorRowMetadata{SourcePath: "/b.md"}},
	}}
	p := New(store, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.Search(context.Background(), "q", Options{TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c-aaa", results[0].ChunkID)
	assert.Equal(t, "c-zzz", results[1].ChunkID)
}

func TestSearchHybridUsesRerankerWhenPresent(t *testing.T) {
	store := &fakeStore{}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "c1", Score: 0.5, Metadata: capability.VectorRowMetadata{SourcePath: "/a.md"}},
	}}
	reranker := &passthroughReranker{}
	p := New(store, vectors, stubEmbedder{}, reranker, DefaultConfig())

	_, err := p.Search(context.Background(), "q", Options{TopK: 10})
	require.NoError(t, err)
	assert.True(t, reranker.called)
}

func TestSearchHybridCapsRerankTopKByRerankTopN(t *testing.T) {
	store := &fakeStore{}
	vectors := &fakeVectorStore{searchResults: []capability.VectorSearchResult{
		{ChunkID: "c1", Score: 0.5, Metadata: capability.VectorRowMetadata{SourcePath: "/a.md"}},
	}}
	reranker := &passthroughReranker{}
	cfg := DefaultConfig()
	cfg.RerankTopN = 3
	p := New(store, vectors, stubEmbedder{}, reranker, cfg)

	_, err := p.Search(context.Background(), "q", Options{TopK: 50})
	require.NoError(t, err)
	require.True(t, reranker.called)
	assert.Equal(t, 3, reranker.receivedOpts.TopK, "reranker must be invoked with topK bounded by RerankTopN")
}

func TestRetrieveBySourcePathSubstitutesFullTextWhenOffsetsPresent(t *testing.T) {
	start, end := 0, 100
	vectors := &fakeVectorStore{bySourcePath: map[string][]capability.VectorRow{
		"/a.md": {
			{ChunkID: "c1", Metadata: capability.VectorRowMetadata{SourcePath: "/a.md", ChunkText: "preview...", StartOffset: &start, EndOffset: &end}},
		},
	}}
	p := New(&fakeStore{}, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.RetrieveBySourcePath(context.Background(), "/a.md", stubParser{text: "full chunk contents"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "full chunk contents", results[0].ChunkText)
}

func TestRetrieveBySourcePathKeepsPreviewWhenNoReader(t *testing.T) {
	start, end := 0, 100
	vectors := &fakeVectorStore{bySourcePath: map[string][]capability.VectorRow{
		"/a.md": {
			{ChunkID: "c1", Metadata: capability.VectorRowMetadata{SourcePath: "/a.md", ChunkText: "preview...", StartOffset: &start, EndOffset: &end}},
		},
	}}
	p := New(&fakeStore{}, vectors, stubEmbedder{}, nil, DefaultConfig())

	results, err := p.RetrieveBySourcePath(context.Background(), "/a.md", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "preview...", results[0].ChunkText)
}

func TestGetSourceChunkInfoByPathOrderedByOffsetThenChunkID(t *testing.T) {
	s1, e1 := 100, 200
	s0, e0 := 0, 100
	store := &fakeStore{chunks: map[string][]repo.Chunk{
		"file_1": {
			{ChunkID: "c-b", StartOffset: &s1, EndOffset: &e1},
			{ChunkID: "c-a", StartOffset: &s0, EndOffset: &e0},
		},
	}}
	p := New(store, &fakeVectorStore{}, stubEmbedder{}, nil, DefaultConfig())

	infos, err := p.GetSourceChunkInfoByPath("file_1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "c-a", infos[0].ChunkID)
	assert.Equal(t, "c-b", infos[1].ChunkID)
}
