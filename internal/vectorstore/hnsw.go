// Package vectorstore implements capability.VectorStore over coder/hnsw, a
// pure-Go HNSW graph. It adds the chunk-identity and source-path indexing
// the capability contract needs on top of the bare vector graph.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/knowdisk/knowdisk/pkg/capability"
)

// Store implements capability.VectorStore using a coder/hnsw graph keyed by
// a string chunkId, plus metadata needed to serve ListBySourcePath and
// DeleteBySourcePath.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64 // chunkId -> internal graph key
	keyMap  map[uint64]string // internal graph key -> chunkId
	meta    map[string]capability.VectorRowMetadata
	byPath  map[string]map[string]struct{} // sourcePath -> set of chunkIds
	nextKey uint64

	closed bool
}

// persisted is the gob-encoded sidecar alongside the HNSW graph export.
type persisted struct {
	IDMap   map[string]uint64
	Meta    map[string]capability.VectorRowMetadata
	NextKey uint64
	Config  Config
}

var _ capability.VectorStore = (*Store)(nil)

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		meta:   make(map[string]capability.VectorRowMetadata),
		byPath: make(map[string]map[string]struct{}),
	}
}

// Upsert replaces rows by ChunkID, idempotent.
func (s *Store) Upsert(ctx context.Context, rows []capability.VectorRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vectorstore: closed")
	}

	for _, row := range rows {
		if len(row.Vector) != s.config.Dimensions {
			return fmt.Errorf("vectorstore: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(row.Vector))
		}
	}

	for _, row := range rows {
		s.removeLocked(row.ChunkID)

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(row.Vector))
		copy(vec, row.Vector)
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[row.ChunkID] = key
		s.keyMap[key] = row.ChunkID
		s.meta[row.ChunkID] = clampPreview(row.Metadata)

		path := row.Metadata.SourcePath
		if s.byPath[path] == nil {
			s.byPath[path] = make(map[string]struct{})
		}
		s.byPath[path][row.ChunkID] = struct{}{}
	}

	return nil
}

// removeLocked drops chunkId from every index. Caller holds s.mu.
func (s *Store) removeLocked(chunkID string) {
	key, exists := s.idMap[chunkID]
	if !exists {
		return
	}
	// Lazy deletion: coder/hnsw corrupts its graph if the last node is
	// removed, so the node stays in the graph and we just orphan the
	// key/id mappings. Orphans never surface in Search because keyMap no
	// longer resolves them.
	delete(s.keyMap, key)
	delete(s.idMap, chunkID)

	if old, ok := s.meta[chunkID]; ok {
		if set := s.byPath[old.SourcePath]; set != nil {
			delete(set, chunkID)
			if len(set) == 0 {
				delete(s.byPath, old.SourcePath)
			}
		}
	}
	delete(s.meta, chunkID)
}

// clampPreview bounds ChunkText to capability.VectorPreviewChars.
func clampPreview(m capability.VectorRowMetadata) capability.VectorRowMetadata {
	if len(m.ChunkText) > capability.VectorPreviewChars {
		m.ChunkText = m.ChunkText[:capability.VectorPreviewChars]
	}
	return m
}

// Search returns the topK nearest rows by cosine similarity (higher is better).
func (s *Store) Search(ctx context.Context, vector []float32, opts capability.VectorSearchOptions) ([]capability.VectorSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vectorstore: closed")
	}
	if len(vector) != s.config.Dimensions {
		return nil, fmt.Errorf("vectorstore: dimension mismatch: expected %d, got %d", s.config.Dimensions, len(vector))
	}
	if s.graph.Len() == 0 {
		return []capability.VectorSearchResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	k := opts.TopK
	if k <= 0 {
		k = 10
	}

	nodes := s.graph.Search(query, k)
	results := make([]capability.VectorSearchResult, 0, len(nodes))
	for _, node := range nodes {
		chunkID, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned (lazily deleted) node
		}
		distance := s.graph.Distance(query, node.Value)
		score := 1.0 - distance/2.0 // cosine distance in [0,2] -> similarity in [0,1]
		results = append(results, capability.VectorSearchResult{
			ChunkID:  chunkID,
			Score:    score,
			Metadata: s.meta[chunkID],
		})
	}
	return results, nil
}

// ListBySourcePath returns every row indexed for path.
func (s *Store) ListBySourcePath(ctx context.Context, path string) ([]capability.VectorRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.byPath[path]
	rows := make([]capability.VectorRow, 0, len(set))
	for chunkID := range set {
		rows = append(rows, capability.VectorRow{
			ChunkID:  chunkID,
			Metadata: s.meta[chunkID],
		})
	}
	return rows, nil
}

// DeleteBySourcePath removes every row indexed for path.
func (s *Store) DeleteBySourcePath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.byPath[path]
	ids := make([]string, 0, len(set))
	for chunkID := range set {
		ids = append(ids, chunkID)
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	return nil
}

// Destroy drops the entire collection, used by force-resync.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph = hnsw.NewGraph[uint64]()
	s.graph.Distance = hnsw.CosineDistance
	s.graph.M = s.config.M
	s.graph.EfSearch = s.config.EfSearch
	s.graph.Ml = 0.25

	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.meta = make(map[string]capability.VectorRowMetadata)
	s.byPath = make(map[string]map[string]struct{})
	s.nextKey = 0
	return nil
}

// Save persists the graph and its sidecar metadata to disk (temp file +
// rename, so a crash mid-write never leaves a half-written index).
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vectorstore: mkdir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorstore: create: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: export: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: rename: %w", err)
	}

	return s.saveSidecar(path + ".meta")
}

func (s *Store) saveSidecar(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorstore: create sidecar: %w", err)
	}
	p := persisted{IDMap: s.idMap, Meta: s.meta, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: encode sidecar: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: close sidecar: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a previously saved graph and its sidecar metadata.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadSidecar(path + ".meta"); err != nil {
		return fmt.Errorf("vectorstore: load sidecar: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vectorstore: open: %w", err)
	}
	defer f.Close()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("vectorstore: import: %w", err)
	}
	return nil
}

func (s *Store) loadSidecar(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return err
	}

	s.idMap = p.IDMap
	s.meta = p.Meta
	s.nextKey = p.NextKey
	s.config = p.Config
	s.keyMap = make(map[uint64]string, len(s.idMap))
	s.byPath = make(map[string]map[string]struct{})
	for chunkID, key := range s.idMap {
		s.keyMap[key] = chunkID
		path := s.meta[chunkID].SourcePath
		if s.byPath[path] == nil {
			s.byPath[path] = make(map[string]struct{})
		}
		s.byPath[path][chunkID] = struct{}{}
	}
	return nil
}

// Close releases resources. Safe to call once; subsequent calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
