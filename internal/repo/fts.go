package repo

import (
	"strings"

	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// UpsertFtsChunks performs a delete-then-insert by chunkId inside a single
// transaction, so no stale tokens survive a content change.
func (r *Repo) UpsertFtsChunks(rows []FtsChunk) error {
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

	deleteStmt, err := tx.Prepare(`DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "prepare fts delete", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.Prepare(`INSERT INTO fts_chunks(chunk_id, file_id, source_path, title, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "prepare fts insert", err)
	}
	defer insertStmt.Close()

	for _, row := range rows {
		if _, err := deleteStmt.Exec(row.ChunkID); err != nil {
			return knowerr.Wrap(knowerr.KindStorage, "delete stale fts row", err)
		}
		if _, err := insertStmt.Exec(row.ChunkID, row.FileID, row.SourcePath, row.Title, row.Text); err != nil {
			return knowerr.Wrap(knowerr.KindStorage, "insert fts row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "commit fts upsert", err)
	}
	return nil
}

// DeleteFtsChunksByIds removes fts rows by chunkId; IDs that don't exist
// are ignored. Used when a diff removes spans without a blanket structural
// rewrite.
func (r *Repo) DeleteFtsChunksByIds(ids []string) error {
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

	_, err := r.db.Exec("DELETE FROM fts_chunks WHERE chunk_id IN ("+placeholders+")", args...)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "delete fts chunks by ids", err)
	}
	return nil
}

// SearchFts returns up to limit rows ordered by ascending BM25 score (lower
// is better). An empty or blank query returns an empty slice.
func (r *Repo) SearchFts(query string, limit int) ([]FtsHit, error) {
	return r.searchFtsColumn(query, limit, "text")
}

// SearchTitleFts is SearchFts restricted to the title field.
func (r *Repo) SearchTitleFts(query string, limit int) ([]FtsHit, error) {
	return r.searchFtsColumn(query, limit, "title")
}

func (r *Repo) searchFtsColumn(query string, limit int, column string) ([]FtsHit, error) {
	if strings.TrimSpace(query) == "" {
		return []FtsHit{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sqlQuery := `
		SELECT chunk_id, file_id, source_path, text, bm25(fts_chunks) as score
		FROM fts_chunks
		WHERE ` + column + ` MATCH ?
		ORDER BY score ASC
		LIMIT ?`

	rows, err := r.db.Query(sqlQuery, query, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []FtsHit{}, nil
		}
		return nil, knowerr.Wrap(knowerr.KindStorage, "search fts", err)
	}
	defer rows.Close()

	var out []FtsHit
	for rows.Next() {
		var h FtsHit
		if err := rows.Scan(&h.ChunkID, &h.FileID, &h.SourcePath, &h.Text, &h.Score); err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "scan fts row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
