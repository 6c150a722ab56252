package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"photonic/internal/model"
)

// BulkPut inserts or updates a batch of assets in one transaction,
// matching spec.md §4.5's "bulkPut for ingest (scanner batches of
// 50-100)". Existing rows are updated by (folder_id, path) so a rescan
// naturally refreshes modified_at/size without duplicating the asset.
func (s *Store) BulkPut(assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO assets (asset_id, folder_id, path, filename, extension, file_size, modified_at, capture_date, width_px, height_px, flag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, path) DO UPDATE SET
			file_size = excluded.file_size,
			modified_at = excluded.modified_at,
			capture_date = excluded.capture_date,
			width_px = excluded.width_px,
			height_px = excluded.height_px;
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range assets {
		if _, err := stmt.Exec(
			a.AssetID, a.FolderID, a.Path, a.Filename, a.Extension, a.FileSize,
			a.ModifiedAt, nullableTime(a.CaptureDate), a.WidthPx, a.HeightPx, string(a.Flag),
		); err != nil {
			return fmt.Errorf("bulk put asset %s: %w", a.AssetID, err)
		}
	}
	return tx.Commit()
}

// SetFlag updates one asset's culling flag.
func (s *Store) SetFlag(assetID string, flag model.Flag) error {
	_, err := s.DB.Exec(`UPDATE assets SET flag = ? WHERE asset_id = ?;`, string(flag), assetID)
	return err
}

// GetAsset fetches one asset by id.
func (s *Store) GetAsset(assetID string) (*model.Asset, error) {
	row := s.DB.QueryRow(`
		SELECT asset_id, folder_id, path, filename, extension, file_size, modified_at, capture_date, width_px, height_px, flag
		FROM assets WHERE asset_id = ?;`, assetID)
	a, err := scanAsset(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListOptions filters and orders a paginated asset list (spec.md §4.5
// "Paginated asset list, filtered by flag ... sorted by one of {...}").
type ListOptions struct {
	FolderID string
	Flag     model.Flag // "" means all
	Sort     model.SortField
	Dir      model.SortDir
	Limit    int
	Offset   int
}

// ListAssets runs the paginated, filtered, sorted asset query. The sort
// column and compound WHERE clause are chosen so the query is always
// served by one of the three compound indexes in ensureSchema, never a
// table scan.
func (s *Store) ListAssets(opts ListOptions) ([]model.Asset, error) {
	col, ok := sortColumn(opts.Sort)
	if !ok {
		col = "capture_date"
	}
	dir := "ASC"
	if opts.Dir == model.SortDesc {
		dir = "DESC"
	}

	where := "folder_id = ?"
	args := []any{opts.FolderID}
	if opts.Flag != "" {
		where += " AND flag = ?"
		args = append(args, string(opts.Flag))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit, opts.Offset)

	query := fmt.Sprintf(`
		SELECT asset_id, folder_id, path, filename, extension, file_size, modified_at, capture_date, width_px, height_px, flag
		FROM assets WHERE %s ORDER BY %s %s, asset_id ASC LIMIT ? OFFSET ?;`, where, col, dir)

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func sortColumn(f model.SortField) (string, bool) {
	switch f {
	case model.SortCaptureDate:
		return "capture_date", true
	case model.SortFilename:
		return "filename", true
	case model.SortModifiedAt:
		return "modified_at", true
	case model.SortFileSize:
		return "file_size", true
	default:
		return "", false
	}
}

// FlagCounts returns the count of assets in folderID for each flag, for
// the header badges (spec.md §4.5 "Counts by flag").
type FlagCounts struct {
	All, Pick, Reject, Unflagged int
}

func (s *Store) FlagCounts(folderID string) (FlagCounts, error) {
	rows, err := s.DB.Query(`SELECT flag, COUNT(*) FROM assets WHERE folder_id = ? GROUP BY flag;`, folderID)
	if err != nil {
		return FlagCounts{}, err
	}
	defer rows.Close()

	var c FlagCounts
	for rows.Next() {
		var flag string
		var n int
		if err := rows.Scan(&flag, &n); err != nil {
			return FlagCounts{}, err
		}
		c.All += n
		switch model.Flag(flag) {
		case model.FlagPick:
			c.Pick = n
		case model.FlagReject:
			c.Reject = n
		default:
			c.Unflagged = n
		}
	}
	return c, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAsset(row scannable) (*model.Asset, error) {
	var a model.Asset
	var flag string
	var captureDate sql.NullTime
	if err := row.Scan(&a.AssetID, &a.FolderID, &a.Path, &a.Filename, &a.Extension, &a.FileSize,
		&a.ModifiedAt, &captureDate, &a.WidthPx, &a.HeightPx, &flag); err != nil {
		return nil, err
	}
	a.Flag = model.Flag(flag)
	if captureDate.Valid {
		t := captureDate.Time
		a.CaptureDate = &t
	}
	return &a, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
