package repo

import (
	"database/sql"
	"errors"

	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// UpsertFile inserts or updates a file row keyed by path. fileId is
// retained across updates (the caller computes it deterministically from
// path and must pass the same value on every call for that path).
func (r *Repo) UpsertFile(f File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO files(file_id, path, size, mtime_ms, inode, status, last_index_time_ms, last_error, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime_ms = excluded.mtime_ms,
			inode = excluded.inode,
			status = excluded.status,
			last_index_time_ms = excluded.last_index_time_ms,
			last_error = excluded.last_error,
			updated_at_ms = excluded.updated_at_ms
	`, f.FileID, f.Path, f.Size, f.MtimeMs, f.Inode, string(f.Status), f.LastIndexTimeMs, f.LastError, f.CreatedAtMs, f.UpdatedAtMs)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "upsert file", err)
	}
	return nil
}

// GetFileByPath returns the file row for path, or nil if absent.
func (r *Repo) GetFileByPath(path string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(`
		SELECT file_id, path, size, mtime_ms, inode, status, last_index_time_ms, last_error, created_at_ms, updated_at_ms
		FROM files WHERE path = ?`, path)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "get file by path", err)
	}
	return f, nil
}

// ListFiles returns every known file row, ordered by path for deterministic
// iteration in tests and reconcile passes.
func (r *Repo) ListFiles() ([]File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`
		SELECT file_id, path, size, mtime_ms, inode, status, last_index_time_ms, last_error, created_at_ms, updated_at_ms
		FROM files ORDER BY path ASC`)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "list files", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "scan file row", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	var status string
	if err := row.Scan(&f.FileID, &f.Path, &f.Size, &f.MtimeMs, &f.Inode, &status,
		&f.LastIndexTimeMs, &f.LastError, &f.CreatedAtMs, &f.UpdatedAtMs); err != nil {
		return nil, err
	}
	f.Status = FileStatus(status)
	return &f, nil
}
