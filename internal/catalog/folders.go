package catalog

import (
	"database/sql"
	"time"

	"photonic/internal/model"
)

// PutFolder inserts or updates a folder record.
func (s *Store) PutFolder(f model.Folder) error {
	_, err := s.DB.Exec(`
		INSERT INTO folders (folder_id, name, handle_key, last_scan_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET name = excluded.name, handle_key = excluded.handle_key;
	`, f.FolderID, f.Name, f.HandleKey, nullableTime(f.LastScanAt))
	return err
}

// TouchScan stamps a folder's last_scan_at to now, called when a scan or
// rescan completes (spec.md §3 Folder.lastScanAt).
func (s *Store) TouchScan(folderID string, at time.Time) error {
	_, err := s.DB.Exec(`UPDATE folders SET last_scan_at = ? WHERE folder_id = ?;`, at, folderID)
	return err
}

// GetFolder fetches one folder by id.
func (s *Store) GetFolder(folderID string) (*model.Folder, error) {
	row := s.DB.QueryRow(`SELECT folder_id, name, handle_key, last_scan_at FROM folders WHERE folder_id = ?;`, folderID)
	return scanFolder(row)
}

// RecentFolders returns folders ordered by last_scan_at descending
// (spec.md §4.5 "Recent folders, ordered by lastScanAt descending").
func (s *Store) RecentFolders(limit int) ([]model.Folder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(`
		SELECT folder_id, name, handle_key, last_scan_at FROM folders
		ORDER BY last_scan_at DESC NULLS LAST LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ClearFolder removes a folder and every asset/edit/cache-metadata row it
// owns (spec.md §3 "destroyed when the owning folder is cleared").
func (s *Store) ClearFolder(folderID string) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM cache_metadata WHERE asset_id IN (SELECT asset_id FROM assets WHERE folder_id = ?);`, []any{folderID}},
		{`DELETE FROM edits WHERE asset_id IN (SELECT asset_id FROM assets WHERE folder_id = ?);`, []any{folderID}},
		{`DELETE FROM assets WHERE folder_id = ?;`, []any{folderID}},
		{`DELETE FROM folders WHERE folder_id = ?;`, []any{folderID}},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.query, st.args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanFolder(row scannable) (*model.Folder, error) {
	var f model.Folder
	var lastScan sql.NullTime
	if err := row.Scan(&f.FolderID, &f.Name, &f.HandleKey, &lastScan); err != nil {
		return nil, err
	}
	if lastScan.Valid {
		t := lastScan.Time
		f.LastScanAt = &t
	}
	return &f, nil
}
