package vectorstore

// Config configures the HNSW-backed vector store.
type Config struct {
	// Dimensions is the vector width. All upserted vectors must match.
	Dimensions int

	// M is HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultConfig returns sensible defaults for the given dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}
