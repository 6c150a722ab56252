// Package model holds the catalog's shared data types: assets, folders,
// edit state, and cache metadata (spec.md §3). It sits below
// internal/catalog (persistence) and internal/editstate (mutation and
// coordination) so both can share one definition without an import cycle.
package model

import (
	"time"

	"photonic/internal/curve"
	"photonic/internal/kernel"
	"photonic/internal/mask"
)

// Flag is an asset's culling state.
type Flag string

const (
	FlagUnflagged Flag = "unflagged"
	FlagPick      Flag = "pick"
	FlagReject    Flag = "reject"
)

// SortField selects the asset-list ordering column.
type SortField string

const (
	SortCaptureDate SortField = "capture_date"
	SortFilename    SortField = "filename"
	SortModifiedAt  SortField = "modified_at"
	SortFileSize    SortField = "file_size"
)

// SortDir is ascending or descending order.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// CurrentSchemaVersion is the EditState schema version new documents are
// created at, and the version every migration upgrades toward.
const CurrentSchemaVersion = 4

// Asset is one image file on disk (spec.md §3 Asset).
type Asset struct {
	AssetID     string
	FolderID    string
	Path        string // relative to the folder root
	Filename    string
	Extension   string // jpg, jpeg, arw
	FileSize    int64
	ModifiedAt  time.Time
	CaptureDate *time.Time
	WidthPx     int
	HeightPx    int
	Flag        Flag
}

// Folder is one user-chosen directory root (spec.md §3 Folder).
type Folder struct {
	FolderID   string
	Name       string
	RootPath   string // absolute path this session resolved the handle to
	HandleKey  string // opaque key into the Permission Store
	LastScanAt *time.Time
}

// Rotation is the crop-transform's rotation component.
type Rotation struct {
	Angle      float64 // -180..180
	Straighten float64 // -45..45
}

// CropTransform is an optional normalized crop plus rotation (spec.md §3).
type CropTransform struct {
	Crop     *kernel.Rect
	Rotation Rotation
}

// EditState is the full set of user edits for one asset (spec.md §3
// EditState). Masks reuse internal/mask's Stack type directly since its
// shape already matches spec.md's LinearMask/RadialMask definitions.
type EditState struct {
	SchemaVersion int
	Adjustments   kernel.Adjustments
	ToneCurve     []curve.Point
	Crop          CropTransform
	Masks         mask.Stack
}

// DefaultEditState returns the identity edit: all adjustments neutral,
// identity tone curve, no crop, no masks.
func DefaultEditState() EditState {
	return EditState{
		SchemaVersion: CurrentSchemaVersion,
		Adjustments:   kernel.Adjustments{},
		ToneCurve:     []curve.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
		Crop:          CropTransform{Crop: nil, Rotation: Rotation{}},
		Masks:         mask.Stack{BlendMode: mask.BlendMultiply},
	}
}

// IsDefault reports whether e is indistinguishable from DefaultEditState(),
// i.e. has no user edits at all (spec.md §3 "isDirty ... derived").
func (e EditState) IsDefault() bool {
	d := DefaultEditState()
	if e.Adjustments != d.Adjustments {
		return false
	}
	if len(e.Masks.Linear) != 0 || len(e.Masks.Radial) != 0 {
		return false
	}
	if e.Crop.Crop != nil {
		return false
	}
	if e.Crop.Rotation != d.Crop.Rotation {
		return false
	}
	return curveEqual(e.ToneCurve, d.ToneCurve)
}

func curveEqual(a, b []curve.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CacheMetadata tracks which cached renditions exist for an asset
// (spec.md §3 CacheMetadata).
type CacheMetadata struct {
	AssetID         string
	ThumbnailReady  bool
	Preview1xReady  bool
	Preview2xReady  bool
	ThumbnailKey    string
	Preview1xKey    string
	Preview2xKey    string
}

// EditGroup names one of the four independently copy/paste-able sections
// of an EditState (spec.md §4.9 copy/paste groups).
type EditGroup string

const (
	GroupBasic EditGroup = "basic"
	GroupCurve EditGroup = "curve"
	GroupCrop  EditGroup = "crop"
	GroupMasks EditGroup = "masks"
)

// AllGroups is the full set of copy/paste/reset groups.
var AllGroups = []EditGroup{GroupBasic, GroupCurve, GroupCrop, GroupMasks}
