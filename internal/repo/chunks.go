package repo

import (
	"strings"

	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// UpsertChunks writes rows atomically across the batch, keyed by chunkId.
func (r *Repo) UpsertChunks(rows []Chunk) error {
	if len(rows) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO chunks(chunk_id, file_id, source_path, start_offset, end_offset, chunk_hash, token_count, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			file_id = excluded.file_id,
			source_path = excluded.source_path,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			chunk_hash = excluded.chunk_hash,
			token_count = excluded.token_count,
			updated_at_ms = excluded.updated_at_ms
	`)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "prepare upsert chunks", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.Exec(c.ChunkID, c.FileID, c.SourcePath, c.StartOffset, c.EndOffset, c.ChunkHash, c.TokenCount, c.UpdatedAtMs); err != nil {
			return knowerr.Wrap(knowerr.KindStorage, "upsert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "commit upsert chunks", err)
	}
	return nil
}

// ListChunksByFileId returns chunks ordered by (startOffset ASC, chunkId
// ASC) for deterministic diffing and testing.
func (r *Repo) ListChunksByFileId(fileID string) ([]Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`
		SELECT chunk_id, file_id, source_path, start_offset, end_offset, chunk_hash, token_count, updated_at_ms
		FROM chunks WHERE file_id = ?
		ORDER BY start_offset ASC, chunk_id ASC`, fileID)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "list chunks by file", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.FileID, &c.SourcePath, &c.StartOffset, &c.EndOffset, &c.ChunkHash, &c.TokenCount, &c.UpdatedAtMs); err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChunksByIds removes the named chunks atomically; IDs that don't
// exist are ignored.
func (r *Repo) DeleteChunksByIds(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := r.db.Exec("DELETE FROM chunks WHERE chunk_id IN ("+placeholders+")", args...)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "delete chunks by ids", err)
	}
	return nil
}
