package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"photonic/internal/apperr"
	"photonic/internal/model"
)

// editDocumentV4 is the on-disk shape of the current schema version.
// Earlier versions are upgraded into this shape by upgradeDocument
// before being handed back to callers, per spec.md §3's migration
// invariant ("any record with schemaVersion < current must be upgraded
// to current before use").
type editDocumentV4 struct {
	Adjustments any `json:"adjustments"`
	ToneCurve   any `json:"toneCurve"`
	Crop        any `json:"crop"`
	Masks       any `json:"masks"`
}

// GetEditState loads the persisted EditState for assetID, migrating it
// to the current schema version if it was written by an older build.
// Returns model.DefaultEditState() if no edit has been saved yet.
func (s *Store) GetEditState(assetID string) (model.EditState, error) {
	var version int
	var docJSON string
	err := s.DB.QueryRow(`SELECT schema_version, document_json FROM edits WHERE asset_id = ?;`, assetID).Scan(&version, &docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultEditState(), nil
	}
	if err != nil {
		return model.EditState{}, err
	}
	if version > model.CurrentSchemaVersion {
		return model.EditState{}, fmt.Errorf("%w: edit state for %s is at version %d", apperr.ErrSchemaUnsupported, assetID, version)
	}

	var doc editDocumentV4
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return model.EditState{}, fmt.Errorf("unmarshal edit state %s: %w", assetID, err)
	}
	edit := model.DefaultEditState()
	remarshal(doc.Adjustments, &edit.Adjustments)
	remarshal(doc.ToneCurve, &edit.ToneCurve)
	remarshal(doc.Crop, &edit.Crop)
	remarshal(doc.Masks, &edit.Masks)
	edit.SchemaVersion = model.CurrentSchemaVersion
	return upgradeDocument(edit, version), nil
}

// upgradeDocument applies any field-level defaults a version bump
// introduced, so a record read at an old version never has a field left
// at its Go zero value when the current schema defines a different
// default for it. Versions 1-3 only added fields this module's schema
// already defaults correctly via DefaultEditState(), so the only repair
// made here is restoring the default tone curve when the stored one is
// empty (GetEditState stamps the version itself); a future schema bump
// that needs real field migration adds a case here.
func upgradeDocument(e model.EditState, fromVersion int) model.EditState {
	if len(e.ToneCurve) == 0 {
		e.ToneCurve = model.DefaultEditState().ToneCurve
	}
	return e
}

func remarshal(src any, dst any) {
	if src == nil {
		return
	}
	b, err := json.Marshal(src)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, dst)
}

// SaveEditState persists edit as the current version for assetID and
// invalidates every CacheMetadata.*Ready flag for it (spec.md §3
// "Changing any field of an EditState invalidates all CacheMetadata
// flags").
func (s *Store) SaveEditState(assetID string, edit model.EditState) error {
	doc := editDocumentV4{
		Adjustments: edit.Adjustments,
		ToneCurve:   edit.ToneCurve,
		Crop:        edit.Crop,
		Masks:       edit.Masks,
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO edits (asset_id, schema_version, document_json) VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET schema_version = excluded.schema_version, document_json = excluded.document_json;
	`, assetID, model.CurrentSchemaVersion, string(docJSON)); err != nil {
		return err
	}
	if err := invalidateCacheMetadataTx(tx, assetID); err != nil {
		return err
	}
	return tx.Commit()
}

func invalidateCacheMetadataTx(tx *sql.Tx, assetID string) error {
	_, err := tx.Exec(`
		INSERT INTO cache_metadata (asset_id, thumbnail_ready, preview1x_ready, preview2x_ready, thumbnail_key, preview1x_key, preview2x_key)
		VALUES (?, 0, 0, 0, NULL, NULL, NULL)
		ON CONFLICT(asset_id) DO UPDATE SET thumbnail_ready = 0, preview1x_ready = 0, preview2x_ready = 0;
	`, assetID)
	return err
}

// GetCacheMetadata fetches one asset's cache readiness flags.
func (s *Store) GetCacheMetadata(assetID string) (model.CacheMetadata, error) {
	var cm model.CacheMetadata
	cm.AssetID = assetID
	var thumbKey, p1Key, p2Key sql.NullString
	err := s.DB.QueryRow(`
		SELECT thumbnail_ready, preview1x_ready, preview2x_ready, thumbnail_key, preview1x_key, preview2x_key
		FROM cache_metadata WHERE asset_id = ?;`, assetID,
	).Scan(&cm.ThumbnailReady, &cm.Preview1xReady, &cm.Preview2xReady, &thumbKey, &p1Key, &p2Key)
	if errors.Is(err, sql.ErrNoRows) {
		return cm, nil
	}
	if err != nil {
		return cm, err
	}
	cm.ThumbnailKey, cm.Preview1xKey, cm.Preview2xKey = thumbKey.String, p1Key.String, p2Key.String
	return cm, nil
}

// MarkCacheReady records that a rendition of kind for assetID now exists
// at blobKey, setting the corresponding *Ready flag.
func (s *Store) MarkCacheReady(assetID string, kind CacheKind, blobKey string) error {
	var col, keyCol string
	switch kind {
	case CacheKindThumbnail:
		col, keyCol = "thumbnail_ready", "thumbnail_key"
	case CacheKindPreview1x:
		col, keyCol = "preview1x_ready", "preview1x_key"
	case CacheKindPreview2x:
		col, keyCol = "preview2x_ready", "preview2x_key"
	default:
		return fmt.Errorf("unknown cache kind %v", kind)
	}
	query := fmt.Sprintf(`
		INSERT INTO cache_metadata (asset_id, %s, %s) VALUES (?, 1, ?)
		ON CONFLICT(asset_id) DO UPDATE SET %s = 1, %s = excluded.%s;
	`, col, keyCol, col, keyCol, keyCol)
	_, err := s.DB.Exec(query, assetID, blobKey)
	return err
}

// CacheKind selects which of the three cached renditions a cache
// metadata operation targets.
type CacheKind int

const (
	CacheKindThumbnail CacheKind = iota
	CacheKindPreview1x
	CacheKindPreview2x
)
