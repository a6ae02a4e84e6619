package repo

import (
	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// AddSourceTombstone records a user-requested source removal.
func (r *Repo) AddSourceTombstone(path string, deletedTimeMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO tombstones(path, deleted_time_ms) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET deleted_time_ms = excluded.deleted_time_ms
	`, path, deletedTimeMs)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "add source tombstone", err)
	}
	return nil
}

// RemoveSourceTombstone clears a previously recorded tombstone.
func (r *Repo) RemoveSourceTombstone(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`DELETE FROM tombstones WHERE path = ?`, path)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "remove source tombstone", err)
	}
	return nil
}

// ListSourceTombstones returns every recorded tombstone.
func (r *Repo) ListSourceTombstones() ([]SourceTombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT path, deleted_time_ms FROM tombstones ORDER BY path ASC`)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "list source tombstones", err)
	}
	defer rows.Close()

	var out []SourceTombstone
	for rows.Next() {
		var t SourceTombstone
		if err := rows.Scan(&t.Path, &t.DeletedTimeMs); err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "scan tombstone row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
