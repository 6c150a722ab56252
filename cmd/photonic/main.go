// Command photonic is the catalog engine's entrypoint: it loads
// configuration, opens the catalog/permission/blob stores, wires the
// pipeline runner, scheduler, edit coordinator, and exporter together,
// then hands off to the cobra command tree (internal/cli).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photonic/internal/blobstore"
	"photonic/internal/catalog"
	"photonic/internal/cli"
	"photonic/internal/config"
	"photonic/internal/editstate"
	"photonic/internal/exporter"
	"photonic/internal/kernel"
	"photonic/internal/logging"
	"photonic/internal/model"
	"photonic/internal/permissions"
	"photonic/internal/pipeline"
	"photonic/internal/scanner"
	"photonic/internal/scheduler"
	"photonic/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "photonic:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	cat, err := catalog.Open(cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	perms, err := permissions.Open(cfg.Paths.PermissionDBPath)
	if err != nil {
		return fmt.Errorf("open permission store: %w", err)
	}
	defer perms.Close()

	blobs, err := blobstore.New(cfg.Paths.BlobStoreRoot, cfg.Cache.MemoryLRUCapacity, cfg.Cache.PersistentByteBudget)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	runner := pipeline.NewRunner(cfg.Cache.StageCacheByteBudget)
	scan := scanner.New(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	processor := server.NewRenderProcessor(cat, perms, runner, blobs, cfg.Quality.DraftShortEdge, cfg.Quality.PreviewLongEdge, cfg.Quality.JPEGQuality)
	sched := scheduler.New(ctx, cfg.Scheduler.ThumbnailWorkers, processor, log, cfg.Scheduler.QueueCap)
	defer sched.Stop()

	loader := assetSourceLoader(cat, perms)
	coord := editstate.New(cat, runner, loader, log, cfg.Quality.DraftShortEdge, cfg.Quality.PreviewLongEdge)
	exp := exporter.New(runner, exportSourceLoader(loader), log, cfg.Processing.ExportWorkers)

	root := cli.NewRoot(cfg, log, cat, perms, blobs, runner, sched, scan, coord, exp)
	rootCmd := cli.NewRootCmd(root)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// assetSourceLoader mirrors internal/cli's own permission-gated asset
// loader (editstate.Coordinator and the scheduler's RenderProcessor each
// need their own instance since neither imports the CLI package).
func assetSourceLoader(cat *catalog.Store, perms *permissions.Store) editstate.SourceLoader {
	return func(ctx context.Context, assetID string) (kernel.DecodeRequest, error) {
		asset, err := cat.GetAsset(assetID)
		if err != nil {
			return kernel.DecodeRequest{}, err
		}
		folder, err := cat.GetFolder(asset.FolderID)
		if err != nil {
			return kernel.DecodeRequest{}, err
		}
		state, err := perms.Query(folder.HandleKey)
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
		ext, err := kernel.ParseExtension(asset.Extension)
		if err != nil {
			return kernel.DecodeRequest{}, err
		}
		return kernel.DecodeRequest{Bytes: data, Ext: ext}, nil
	}
}

func exportSourceLoader(loader editstate.SourceLoader) exporter.SourceLoader {
	return func(ctx context.Context, asset model.Asset) (kernel.DecodeRequest, error) {
		return loader(ctx, asset.AssetID)
	}
}
