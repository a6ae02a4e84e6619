// Package processor implements the File-Index Processor: stat → parse →
// chunk → diff → minimal upsert across the metadata repository, the
// full-text index, and the vector store.
package processor

import (
	"context"
	"os"

	"github.com/knowdisk/knowdisk/internal/chunker"
	"github.com/knowdisk/knowdisk/internal/knowerr"
	"github.com/knowdisk/knowdisk/internal/repo"
	"github.com/knowdisk/knowdisk/pkg/capability"
)

// Store is the subset of the Metadata Repository the processor needs.
// *repo.Repo satisfies this directly.
type Store interface {
	GetFileByPath(path string) (*repo.File, error)
	UpsertFile(f repo.File) error
	ListChunksByFileId(fileID string) ([]repo.Chunk, error)
	UpsertChunks(rows []repo.Chunk) error
	DeleteChunksByIds(ids []string) error
	UpsertFtsChunks(rows []repo.FtsChunk) error
	DeleteFtsChunksByIds(ids []string) error
}

// Result is the outcome of IndexFile.
type Result struct {
	Skipped       bool
	IndexedChunks int
}

// Processor converts a file on disk into chunk/vector/FTS rows. It retains
// no mutable state across calls.
type Processor struct {
	store    Store
	vectors  capability.VectorStore
	embedder capability.Embedder
	chunker  *chunker.Chunker
	clock    capability.Clock
}

// New creates a Processor.
func New(store Store, vectors capability.VectorStore, embedder capability.Embedder, chunkerCfg chunker.Config, clock capability.Clock) *Processor {
	return &Processor{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunker.New(chunkerCfg),
		clock:    clock,
	}
}

type offsetKey struct{ start, end int }

// offsetKeyOf canonicalizes a chunk span's offsets into a comparable key.
// Our Parser/Chunker pipeline always produces concrete offsets, so the
// "no offset" case the schema permits never arises here.
func offsetKeyOf(start, end *int) offsetKey {
	s, e := 0, 0
	if start != nil {
		s = *start
	}
	if end != nil {
		e = *end
	}
	return offsetKey{s, e}
}

// IndexFile streams path through parser, chunks the result, diffs against
// previously stored chunks, and performs the minimal set of store updates.
func (p *Processor) IndexFile(ctx context.Context, path string, parser capability.Parser) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, knowerr.Wrap(knowerr.KindStorage, "stat file", err)
	}
	size := info.Size()
	mtimeMs := info.ModTime().UnixMilli()

	existing, err := p.store.GetFileByPath(path)
	if err != nil {
		return Result{}, err
	}

	if existing != nil && existing.Status == repo.FileStatusIndexed && existing.Size == size && existing.MtimeMs == mtimeMs {
		return Result{Skipped: true}, nil
	}

	fileID := FileID(path)
	if existing != nil {
		fileID = existing.FileID
	}

	now := p.clock.NowMs()
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAtMs
	}

	if err := p.store.UpsertFile(repo.File{
		FileID:      fileID,
		Path:        path,
		Size:        size,
		MtimeMs:     mtimeMs,
		Status:      repo.FileStatusIndexing,
		LastError:   nil,
		CreatedAtMs: createdAt,
		UpdatedAtMs: now,
	}); err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, knowerr.Wrap(knowerr.KindParse, "read file", err)
	}

	parsedSpans, err := parser.ParseStream(ctx, data)
	if err != nil {
		return Result{}, knowerr.Wrap(knowerr.KindParse, "parse file", err)
	}

	var spans []chunker.Span
	for _, ps := range parsedSpans {
		if ps.Skipped != "" || ps.Text == "" {
			continue
		}
		spans = append(spans, chunker.Span{Text: ps.Text, BaseOffset: ps.StartOffset})
	}

	newSpans := p.chunker.Chunk(spans)

	priorChunks, err := p.store.ListChunksByFileId(fileID)
	if err != nil {
		return Result{}, err
	}
	priorByKey := make(map[offsetKey]repo.Chunk, len(priorChunks))
	for _, c := range priorChunks {
		priorByKey[offsetKeyOf(c.StartOffset, c.EndOffset)] = c
	}

	newKeys := make(map[offsetKey]struct{}, len(newSpans))
	var changedIDs []string
	hasStructuralChange := false

	for _, span := range newSpans {
		key := offsetKey{span.StartOffset, span.EndOffset}
		newKeys[key] = struct{}{}

		prior, ok := priorByKey[key]
		switch {
		case !ok:
			hasStructuralChange = true
		case prior.ChunkHash != span.ChunkHash:
			changedIDs = append(changedIDs, prior.ChunkID)
		}
	}

	var removedIDs []string
	for key, prior := range priorByKey {
		if _, stillPresent := newKeys[key]; !stillPresent {
			removedIDs = append(removedIDs, prior.ChunkID)
			hasStructuralChange = true
		}
	}

	var spansToEmbed []chunker.ChunkSpan
	if hasStructuralChange {
		spansToEmbed = newSpans

		if err := p.vectors.DeleteBySourcePath(ctx, path); err != nil {
			return Result{}, knowerr.Wrap(knowerr.KindVectorStore, "delete vectors by source path", err)
		}

		allPriorIDs := make([]string, 0, len(priorChunks))
		for _, c := range priorChunks {
			allPriorIDs = append(allPriorIDs, c.ChunkID)
		}
		if err := p.store.DeleteChunksByIds(allPriorIDs); err != nil {
			return Result{}, err
		}
		if err := p.store.DeleteFtsChunksByIds(allPriorIDs); err != nil {
			return Result{}, err
		}
	} else {
		for _, span := range newSpans {
			key := offsetKey{span.StartOffset, span.EndOffset}
			prior, ok := priorByKey[key]
			if !ok || prior.ChunkHash != span.ChunkHash {
				spansToEmbed = append(spansToEmbed, span)
			}
		}
		// A content-changed span keeps its (start, end) key but gets a new,
		// hash-derived chunkId, so its superseded row must be deleted here:
		// UNIQUE(file_id, start_offset, end_offset) would otherwise reject
		// the upsert below, and ON CONFLICT(chunk_id) can't catch that.
		idsToDelete := append(append([]string(nil), removedIDs...), changedIDs...)
		if len(idsToDelete) > 0 {
			if err := p.store.DeleteChunksByIds(idsToDelete); err != nil {
				return Result{}, err
			}
			if err := p.store.DeleteFtsChunksByIds(idsToDelete); err != nil {
				return Result{}, err
			}
		}
	}

	title := defaultTitle(path)

	chunkRows := make([]repo.Chunk, 0, len(spansToEmbed))
	ftsRows := make([]repo.FtsChunk, 0, len(spansToEmbed))
	vectorRows := make([]capability.VectorRow, 0, len(spansToEmbed))

	for _, span := range spansToEmbed {
		chunkID := ChunkID(fileID, span.StartOffset, span.EndOffset, span.ChunkHash)
		start, end := span.StartOffset, span.EndOffset

		vector, err := p.embedder.Embed(ctx, span.Text)
		if err != nil {
			return Result{}, knowerr.Wrap(knowerr.KindEmbed, "embed chunk", err)
		}

		chunkRows = append(chunkRows, repo.Chunk{
			ChunkID:     chunkID,
			FileID:      fileID,
			SourcePath:  path,
			StartOffset: &start,
			EndOffset:   &end,
			ChunkHash:   span.ChunkHash,
			TokenCount:  intPtr(span.TokenCount),
			UpdatedAtMs: now,
		})
		ftsRows = append(ftsRows, repo.FtsChunk{
			ChunkID:    chunkID,
			FileID:     fileID,
			SourcePath: path,
			Title:      title,
			Text:       span.Text,
		})
		vectorRows = append(vectorRows, capability.VectorRow{
			ChunkID: chunkID,
			Vector:  vector,
			Metadata: capability.VectorRowMetadata{
				SourcePath:    path,
				Title:         title,
				ChunkText:     span.Text,
				StartOffset:   &start,
				EndOffset:     &end,
				TokenEstimate: span.TokenCount,
				UpdatedAtMs:   now,
			},
		})
	}

	if len(vectorRows) > 0 {
		if err := p.vectors.Upsert(ctx, vectorRows); err != nil {
			return Result{}, knowerr.Wrap(knowerr.KindVectorStore, "upsert vectors", err)
		}
	}
	if len(chunkRows) > 0 {
		if err := p.store.UpsertChunks(chunkRows); err != nil {
			return Result{}, err
		}
	}
	if len(ftsRows) > 0 {
		if err := p.store.UpsertFtsChunks(ftsRows); err != nil {
			return Result{}, err
		}
	}

	indexedAt := now
	if err := p.store.UpsertFile(repo.File{
		FileID:          fileID,
		Path:            path,
		Size:            size,
		MtimeMs:         mtimeMs,
		Status:          repo.FileStatusIndexed,
		LastIndexTimeMs: &indexedAt,
		LastError:       nil,
		CreatedAtMs:     createdAt,
		UpdatedAtMs:     now,
	}); err != nil {
		return Result{}, err
	}

	return Result{Skipped: false, IndexedChunks: len(vectorRows)}, nil
}

// DeleteFile removes a file's chunks, vectors, and FTS rows, then marks the
// file row deleted.
func (p *Processor) DeleteFile(ctx context.Context, path string) error {
	existing, err := p.store.GetFileByPath(path)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	if err := p.vectors.DeleteBySourcePath(ctx, path); err != nil {
		return knowerr.Wrap(knowerr.KindVectorStore, "delete vectors by source path", err)
	}

	chunks, err := p.store.ListChunksByFileId(existing.FileID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ChunkID)
	}
	if err := p.store.DeleteChunksByIds(ids); err != nil {
		return err
	}
	if err := p.store.DeleteFtsChunksByIds(ids); err != nil {
		return err
	}

	now := p.clock.NowMs()
	return p.store.UpsertFile(repo.File{
		FileID:      existing.FileID,
		Path:        path,
		Size:        existing.Size,
		MtimeMs:     existing.MtimeMs,
		Status:      repo.FileStatusDeleted,
		LastError:   nil,
		CreatedAtMs: existing.CreatedAtMs,
		UpdatedAtMs: now,
	})
}

func intPtr(v int) *int { return &v }

func defaultTitle(path string) string {
	return path
}
