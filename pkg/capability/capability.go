// Package capability defines the external collaborator contracts the core
// consumes: embedding, reranking, vector storage, parsing, and time. The
// core never implements these — it is handed concrete values through
// constructors (capability injection over global state) and is agnostic to
// what backs them (a local model, a remote API, an in-memory fake for
// tests).
package capability

import "context"

// Embedder turns text into a dense vector. Implementations must return
// vectors of a fixed dimension per instance.
type Embedder interface {
	// Embed computes the embedding for a single piece of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the fixed vector width this embedder produces.
	Dimensions() int
}

// VectorRowMetadata travels alongside a vector across the VectorStore
// boundary. ChunkText is bounded to VECTOR_PREVIEW_CHARS; full text lives in
// the FTS store and/or on disk.
type VectorRowMetadata struct {
	SourcePath    string
	Title         string
	ChunkText     string
	StartOffset   *int
	EndOffset     *int
	TokenEstimate int
	UpdatedAtMs   int64
}

// VectorPreviewChars bounds the chunk text preview kept in vector metadata,
// per spec.md §3.
const VectorPreviewChars = 200

// VectorRow is a single vector plus its retrieval metadata.
type VectorRow struct {
	ChunkID  string
	Vector   []float32
	Metadata VectorRowMetadata
}

// VectorSearchResult is a single hit from VectorStore.Search, ranked by
// cosine similarity (higher is better).
type VectorSearchResult struct {
	ChunkID  string
	Score    float32
	Metadata VectorRowMetadata
}

// VectorSearchOptions configures VectorStore.Search.
type VectorSearchOptions struct {
	TopK int
}

// VectorStore is the dense index the core indexes into and searches.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert replaces rows by ChunkID. Idempotent.
	Upsert(ctx context.Context, rows []VectorRow) error

	// Search returns the topK nearest rows to vector by cosine similarity.
	Search(ctx context.Context, vector []float32, opts VectorSearchOptions) ([]VectorSearchResult, error)

	// ListBySourcePath returns every row indexed for the given source path.
	ListBySourcePath(ctx context.Context, path string) ([]VectorRow, error)

	// DeleteBySourcePath removes every row indexed for the given source path.
	DeleteBySourcePath(ctx context.Context, path string) error

	// Destroy drops the entire collection. Used by force-resync.
	Destroy(ctx context.Context) error
}

// RerankRow is a single candidate the Reranker may reorder.
type RerankRow struct {
	ChunkID  string
	Score    float64
	Text     string
	Metadata VectorRowMetadata
}

// RerankOptions configures Reranker.Rerank.
type RerankOptions struct {
	TopK int
}

// Reranker reorders a merged result set by relevance to the query. It must
// return rows in descending score order.
type Reranker interface {
	Rerank(ctx context.Context, query string, rows []RerankRow, opts RerankOptions) ([]RerankRow, error)
}

// ParsedSpan is one segment of text a Parser extracts from a byte stream,
// ready to be fed to the Chunker. Skipped is non-empty when the parser is
// intentionally omitting a segment (e.g. a binary preamble, a fenced code
// block in "skip code blocks" mode); such spans never reach the Chunker.
type ParsedSpan struct {
	Text          string
	StartOffset   int
	EndOffset     int
	TokenEstimate int
	Skipped       string
}

// Parser converts a byte stream into text spans with stable offsets into
// the original file.
type Parser interface {
	// ParseStream parses the full contents of r (expected UTF-8) into spans.
	ParseStream(ctx context.Context, r []byte) ([]ParsedSpan, error)

	// ReadRange returns the exact text of path between [start, end), used to
	// recover full chunk text for retrieval without reparsing the whole file.
	ReadRange(ctx context.Context, path string, start, end int) (string, error)
}

// Clock supplies the current time so the core never calls time.Now()
// directly, keeping indexing and retrieval deterministic under test.
type Clock interface {
	NowMs() int64
}
