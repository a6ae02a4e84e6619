// Package retrieval implements the Hybrid Retrieval Pipeline: merges dense
// (vector) and lexical (FTS/BM25) search, with an optional reranking pass.
package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

// Store is the subset of the Metadata Repository the pipeline reads.
type Store interface {
	SearchFts(query string, limit int) ([]repo.FtsHit, error)
	SearchTitleFts(query string, limit int) ([]repo.FtsHit, error)
	ListChunksByFileId(fileID string) ([]repo.Chunk, error)
}

// Options configures Search.
type Options struct {
	TopK      int
	TitleOnly bool
}

// Config sizes the pipeline's internal candidate pools.
type Config struct {
	DefaultTopK int
	FtsTopN     int
	VectorTopK  int
	RerankTopN  int
}

// DefaultConfig mirrors common hybrid-search defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTopK: 10,
		FtsTopN:     50,
		VectorTopK:  50,
		RerankTopN:  10,
	}
}

// Result is the public shape returned to callers.
type Result struct {
	ChunkID    string
	SourcePath string
	ChunkText  string
	Score      float64
}

// Pipeline is the Hybrid Retrieval Pipeline.
type Pipeline struct {
	store    Store
	vectors  capability.VectorStore
	embedder capability.Embedder
	reranker capability.Reranker // optional; nil disables reranking
	cfg      Config
}

// New creates a Pipeline. reranker may be nil.
func New(store Store, vectors capability.VectorStore, embedder capability.Embedder, reranker capability.Reranker, cfg Config) *Pipeline {
	return &Pipeline{store: store, vectors: vectors, embedder: embedder, reranker: reranker, cfg: cfg}
}

// Search runs the title-only or hybrid algorithm depending on opts.
func (p *Pipeline) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = p.cfg.DefaultTopK
	}

	if opts.TitleOnly {
		return p.searchTitleOnly(query, topK)
	}
	return p.searchHybrid(ctx, query, topK)
}

func (p *Pipeline) searchTitleOnly(query string, topK int) ([]Result, error) {
	hits, err := p.store.SearchTitleFts(query, p.cfg.FtsTopN)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ChunkID:    h.SourcePath,
			SourcePath: h.SourcePath,
			ChunkText:  h.SourcePath,
			Score:      normalizeFtsScore(h.Score),
		})
	}
	sortResults(results)
	return truncate(results, topK), nil
}

type mergedRow struct {
	chunkID    string
	sourcePath string
	chunkText  string
	score      float64
	fromVector bool
}

func (p *Pipeline) searchHybrid(ctx context.Context, query string, topK int) ([]Result, error) {
	queryVector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	vectorRows, err := p.vectors.Search(ctx, queryVector, capability.VectorSearchOptions{TopK: p.cfg.VectorTopK})
	if err != nil {
		return nil, err
	}

	ftsHits, err := p.store.SearchFts(query, p.cfg.FtsTopN)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]mergedRow, len(vectorRows)+len(ftsHits))
	for _, v := range vectorRows {
		merged[v.ChunkID] = mergedRow{
			chunkID:    v.ChunkID,
			sourcePath: v.Metadata.SourcePath,
			chunkText:  v.Metadata.ChunkText,
			score:      float64(v.Score),
			fromVector: true,
		}
	}
	for _, h := range ftsHits {
		if _, exists := merged[h.ChunkID]; exists {
			continue // vector rows win conflicts
		}
		merged[h.ChunkID] = mergedRow{
			chunkID:    h.ChunkID,
			sourcePath: h.SourcePath,
			chunkText:  h.Text,
			score:      1.0 / (1.0 + math.Abs(h.Score)),
		}
	}

	rows := make([]mergedRow, 0, len(merged))
	for _, r := range merged {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].chunkID < rows[j].chunkID
	})

	if p.reranker != nil {
		if topK > p.cfg.RerankTopN {
			topK = p.cfg.RerankTopN
		}

		rerankRows := make([]capability.RerankRow, len(rows))
		for i, r := range rows {
			rerankRows[i] = capability.RerankRow{
				ChunkID: r.chunkID,
				Score:   r.score,
				Text:    r.chunkText,
				Metadata: capability.VectorRowMetadata{
					SourcePath: r.sourcePath,
					ChunkText:  r.chunkText,
				},
			}
		}
		reranked, err := p.reranker.Rerank(ctx, query, rerankRows, capability.RerankOptions{TopK: topK})
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(reranked))
		for _, r := range reranked {
			results = append(results, Result{
				ChunkID:    r.ChunkID,
				SourcePath: r.Metadata.SourcePath,
				ChunkText:  r.Text,
				Score:      r.Score,
			})
		}
		return truncate(results, topK), nil
	}

	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, Result{
			ChunkID:    r.chunkID,
			SourcePath: r.sourcePath,
			ChunkText:  r.chunkText,
			Score:      r.score,
		})
	}
	return truncate(results, topK), nil
}

// RetrieveBySourcePath returns every vector row indexed for path. If reader
// is non-nil and a row has both offsets, the stored preview is replaced by
// the exact text read back from disk.
func (p *Pipeline) RetrieveBySourcePath(ctx context.Context, path string, reader capability.Parser) ([]Result, error) {
	rows, err := p.vectors.ListBySourcePath(ctx, path)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		text := row.Metadata.ChunkText
		if reader != nil && row.Metadata.StartOffset != nil && row.Metadata.EndOffset != nil {
			if full, err := reader.ReadRange(ctx, path, *row.Metadata.StartOffset, *row.Metadata.EndOffset); err == nil {
				text = full
			}
		}
		results = append(results, Result{
			ChunkID:    row.ChunkID,
			SourcePath: row.Metadata.SourcePath,
			ChunkText:  text,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ChunkID < results[j].ChunkID })
	return results, nil
}

// ChunkInfo is the raw shape returned by GetSourceChunkInfoByPath, used by
// the tool-calling boundary to enumerate chunk metadata without loading text.
type ChunkInfo struct {
	ChunkID     string
	StartOffset *int
	EndOffset   *int
	ChunkHash   string
	TokenCount  *int
}

// GetSourceChunkInfoByPath returns every known chunk for path's file,
// ordered by (startOffset, chunkId).
func (p *Pipeline) GetSourceChunkInfoByPath(fileID string) ([]ChunkInfo, error) {
	chunks, err := p.store.ListChunksByFileId(fileID)
	if err != nil {
		return nil, err
	}

	out := make([]ChunkInfo, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ChunkInfo{
			ChunkID:     c.ChunkID,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			ChunkHash:   c.ChunkHash,
			TokenCount:  c.TokenCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := offsetOf(out[i].StartOffset), offsetOf(out[j].StartOffset)
		if oi != oj {
			return oi < oj
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, nil
}

func offsetOf(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// normalizeFtsScore converts an ascending BM25 score (lower is better) into
// a descending [0,1]-ish score comparable to cosine similarity.
func normalizeFtsScore(bm25 float64) float64 {
	return 1.0 / (1.0 + math.Abs(bm25))
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func truncate(results []Result, topK int) []Result {
	if topK > 0 && len(results) > topK {
		return results[:topK]
	}
	return results
}
