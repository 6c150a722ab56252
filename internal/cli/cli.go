// Package cli wires photonic's engine packages (catalog, scanner,
// scheduler, edit coordinator, exporter, permission store) to a set of
// cobra subcommands, grounded on the teacher's internal/cli.Root
// wiring pattern.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"photonic/internal/blobstore"
	"photonic/internal/catalog"
	"photonic/internal/config"
	"photonic/internal/editstate"
	"photonic/internal/exporter"
	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/permissions"
	"photonic/internal/pipeline"
	"photonic/internal/scanner"
	"photonic/internal/scheduler"

	"github.com/google/uuid"
)

// Root wires every engine package to the CLI's subcommands.
type Root struct {
	cfg    *config.Config
	log    *slog.Logger
	cat    *catalog.Store
	perms  *permissions.Store
	blobs  *blobstore.Store
	runner *pipeline.Runner
	sched  *scheduler.Scheduler
	scan   *scanner.Scanner
	coord  *editstate.Coordinator
	exp    *exporter.Exporter

	clipboard *editstate.Snapshot
}

// NewRoot constructs the CLI root, taking already-opened stores and
// engine components (see cmd/photonic for wiring order).
func NewRoot(cfg *config.Config, log *slog.Logger, cat *catalog.Store, perms *permissions.Store, blobs *blobstore.Store, runner *pipeline.Runner, sched *scheduler.Scheduler, scan *scanner.Scanner, coord *editstate.Coordinator, exp *exporter.Exporter) *Root {
	return &Root{cfg: cfg, log: log, cat: cat, perms: perms, blobs: blobs, runner: runner, sched: sched, scan: scan, coord: coord, exp: exp}
}

// SourceLoader resolves an asset's full path via the permission store's
// granted handle, then reads its bytes off disk.
func (r *Root) sourceLoader(ctx context.Context, assetID string) (kernel.DecodeRequest, error) {
	asset, err := r.cat.GetAsset(assetID)
	if err != nil {
		return kernel.DecodeRequest{}, err
	}
	return r.loadAssetBytes(*asset)
}

// exportLoader adapts loadAssetBytes to exporter.SourceLoader's shape.
func (r *Root) exportLoader(ctx context.Context, asset model.Asset) (kernel.DecodeRequest, error) {
	return r.loadAssetBytes(asset)
}

func (r *Root) loadAssetBytes(asset model.Asset) (kernel.DecodeRequest, error) {
	folder, err := r.cat.GetFolder(asset.FolderID)
	if err != nil {
		return kernel.DecodeRequest{}, err
	}
	state, err := r.perms.Query(folder.HandleKey)
	if err != nil {
		return kernel.DecodeRequest{}, err
	}
	if state != permissions.StateGranted {
		return kernel.DecodeRequest{}, fmt.Errorf("folder %s is not accessible (state=%s)", folder.Name, state)
	}

	full := folder.RootPath + string(os.PathSeparator) + asset.Path
	data, err := os.ReadFile(full)
	if err != nil {
		return kernel.DecodeRequest{}, err
	}
	ext, err := extensionFromString(asset.Extension)
	if err != nil {
		return kernel.DecodeRequest{}, err
	}
	return kernel.DecodeRequest{Bytes: data, Ext: ext}, nil
}

func extensionFromString(s string) (kernel.Extension, error) {
	return kernel.ParseExtension(s)
}

// ingestFolder walks root, extracts per-file metadata, and upserts every
// discovered asset into the catalog in scanner-sized batches.
func (r *Root) ingestFolder(ctx context.Context, folderID, root string, onProgress func(scanner.Progress)) (int, error) {
	out, errCh := r.scan.Scan(ctx, root, onProgress)

	total := 0
	for batch := range out {
		assets := make([]model.Asset, 0, len(batch))
		for _, f := range batch {
			asset := model.Asset{
				AssetID:    deterministicAssetID(folderID, f.RelPath),
				FolderID:   folderID,
				Path:       f.RelPath,
				Filename:   f.Filename,
				Extension:  f.Extension,
				FileSize:   f.FileSize,
				ModifiedAt: f.ModifiedAt,
				Flag:       model.FlagUnflagged,
			}
			if ext, err := extensionFromString(f.Extension); err == nil {
				if data, err := os.ReadFile(f.AbsPath); err == nil {
					md := kernel.ExtractMetadata(data, ext)
					asset.WidthPx, asset.HeightPx = md.Width, md.Height
					if md.CaptureDate != nil {
						asset.CaptureDate = md.CaptureDate
					} else {
						asset.CaptureDate = &asset.ModifiedAt
					}
				}
			}
			assets = append(assets, asset)
		}
		if err := r.cat.BulkPut(assets); err != nil {
			return total, err
		}
		total += len(assets)
	}

	if err := <-errCh; err != nil {
		return total, err
	}
	return total, r.cat.TouchScan(folderID, time.Now())
}

// deterministicAssetID derives a stable id from (folderId, path) so a
// rescan refreshes the same row instead of minting duplicates.
func deterministicAssetID(folderID, path string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(folderID+"/"+path)).String()
}
