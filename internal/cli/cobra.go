package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"photonic/internal/catalog"
	"photonic/internal/exporter"
	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/permissions"
	"photonic/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the photonic root command and every subcommand,
// grounded on the teacher's NewRootCmd/NewRoot wiring.
func NewRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photonic",
		Short: "Photonic is a non-destructive RAW/JPEG catalog and editor",
		Long: `Photonic catalogs a folder of JPEG and Sony ARW photos, applies
non-destructive edits through a fixed pixel pipeline, and exports the
results.`,
	}

	rootCmd.AddCommand(newOpenCmd(root))
	rootCmd.AddCommand(newRescanCmd(root))
	rootCmd.AddCommand(newListCmd(root))
	rootCmd.AddCommand(newFlagCmd(root))
	rootCmd.AddCommand(newEditCmd(root))
	rootCmd.AddCommand(newExportCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newPermissionsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newOpenCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <directory>",
		Short: "Grant access to a folder and run its initial scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			folderID := uuid.NewString()
			handleKey := folderID

			if err := root.perms.Save(handleKey, permissions.Handle{Path: path}); err != nil {
				return fmt.Errorf("save handle: %w", err)
			}
			state, err := root.perms.Request(handleKey)
			if err != nil {
				return fmt.Errorf("request access: %w", err)
			}
			if state != permissions.StateGranted {
				return fmt.Errorf("cannot access %s (state=%s)", path, state)
			}

			folder := model.Folder{FolderID: folderID, Name: filepath.Base(path), RootPath: path, HandleKey: handleKey}
			if err := root.cat.PutFolder(folder); err != nil {
				return fmt.Errorf("save folder: %w", err)
			}

			count, err := root.ingestFolder(cmd.Context(), folderID, path, nil)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}

			fmt.Printf("opened %s as folder %s (%d assets)\n", path, folderID, count)
			return nil
		},
	}
	return cmd
}

func newRescanCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescan <folderId>",
		Short: "Re-walk a previously opened folder and refresh its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID := args[0]
			folder, err := root.cat.GetFolder(folderID)
			if err != nil {
				return fmt.Errorf("unknown folder %s: %w", folderID, err)
			}
			root.sched.ClearAll()
			count, err := root.ingestFolder(cmd.Context(), folderID, folder.RootPath, nil)
			if err != nil {
				return err
			}
			fmt.Printf("rescanned %s: %d assets\n", folder.Name, count)
			return nil
		},
	}
	return cmd
}

func newListCmd(root *Root) *cobra.Command {
	var (
		flag   string
		sortBy string
		dir    string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list <folderId>",
		Short: "List assets in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := catalog.ListOptions{
				FolderID: args[0],
				Flag:     model.Flag(flag),
				Sort:     model.SortField(sortBy),
				Dir:      model.SortDir(dir),
				Limit:    limit,
				Offset:   offset,
			}
			assets, err := root.cat.ListAssets(opts)
			if err != nil {
				return err
			}
			for _, a := range assets {
				fmt.Printf("%s\t%s\t%s\t%dx%d\t%s\n", a.AssetID, a.Filename, a.Flag, a.WidthPx, a.HeightPx, captureDateString(a))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flag, "flag", "", "filter by flag: pick, reject, unflagged")
	cmd.Flags().StringVar(&sortBy, "sort", "capture_date", "sort field: capture_date, filename, modified_at, file_size")
	cmd.Flags().StringVar(&dir, "dir", "asc", "sort direction: asc, desc")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows returned")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func captureDateString(a model.Asset) string {
	if a.CaptureDate == nil {
		return ""
	}
	return a.CaptureDate.Format("2006-01-02")
}

func newFlagCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag <assetId> <pick|reject|unflagged>",
		Short: "Set an asset's culling flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := model.Flag(args[1])
			switch f {
			case model.FlagPick, model.FlagReject, model.FlagUnflagged:
			default:
				return fmt.Errorf("invalid flag %q", args[1])
			}
			return root.cat.SetFlag(args[0], f)
		},
	}
	return cmd
}

func newEditCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Mutate an asset's non-destructive edit state",
	}
	cmd.AddCommand(newEditSetCmd(root))
	cmd.AddCommand(newEditResetCmd(root))
	cmd.AddCommand(newEditCopyCmd(root))
	cmd.AddCommand(newEditPasteCmd(root))
	return cmd
}

func newEditSetCmd(root *Root) *cobra.Command {
	var adj kernel.Adjustments
	cmd := &cobra.Command{
		Use:   "set <assetId>",
		Short: "Apply basic adjustment knobs and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID := args[0]
			if _, err := root.coord.LoadForAsset(cmd.Context(), assetID); err != nil {
				return err
			}
			root.coord.SetAdjustments(adj)
			saved, err := root.coord.Save()
			if err != nil {
				return err
			}
			fmt.Printf("saved edit for %s\n", saved)
			return nil
		},
	}
	cmd.Flags().Float64Var(&adj.ExposureStops, "exposure", 0, "exposure in stops")
	cmd.Flags().Float64Var(&adj.Contrast, "contrast", 0, "contrast -100..100")
	cmd.Flags().Float64Var(&adj.Temperature, "temperature", 0, "temperature -100..100")
	cmd.Flags().Float64Var(&adj.Tint, "tint", 0, "tint -100..100")
	cmd.Flags().Float64Var(&adj.Highlights, "highlights", 0, "highlights -100..100")
	cmd.Flags().Float64Var(&adj.Shadows, "shadows", 0, "shadows -100..100")
	cmd.Flags().Float64Var(&adj.Whites, "whites", 0, "whites -100..100")
	cmd.Flags().Float64Var(&adj.Blacks, "blacks", 0, "blacks -100..100")
	cmd.Flags().Float64Var(&adj.Saturation, "saturation", 0, "saturation -100..100")
	cmd.Flags().Float64Var(&adj.Vibrance, "vibrance", 0, "vibrance -100..100")
	return cmd
}

func newEditResetCmd(root *Root) *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "reset <assetId>",
		Short: "Reset an asset's edit state, in whole or by section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.coord.LoadForAsset(cmd.Context(), args[0]); err != nil {
				return err
			}
			if section == "" {
				root.coord.Reset()
			} else {
				root.coord.ResetSection(model.EditGroup(section))
			}
			_, err := root.coord.Save()
			return err
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "basic, curve, crop, or masks; empty resets everything")
	return cmd
}

func newEditCopyCmd(root *Root) *cobra.Command {
	var groups string
	cmd := &cobra.Command{
		Use:   "copy <assetId>",
		Short: "Snapshot an asset's edit state for a later paste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := root.coord.Copy(args[0], parseGroups(groups))
			if err != nil {
				return err
			}
			root.clipboard = &snap
			fmt.Printf("copied %d group(s) from %s\n", len(snap.Groups), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&groups, "groups", "basic,curve,crop,masks", "comma-separated groups to copy")
	return cmd
}

func newEditPasteCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paste <assetId>",
		Short: "Apply the most recently copied edit snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.clipboard == nil {
				return fmt.Errorf("nothing copied yet")
			}
			if err := root.coord.Paste(cmd.Context(), args[0], *root.clipboard); err != nil {
				return err
			}
			_, err := root.coord.Save()
			return err
		},
	}
	return cmd
}

func parseGroups(s string) []model.EditGroup {
	if s == "" {
		return model.AllGroups
	}
	parts := strings.Split(s, ",")
	groups := make([]model.EditGroup, 0, len(parts))
	for _, p := range parts {
		groups = append(groups, model.EditGroup(strings.TrimSpace(p)))
	}
	return groups
}

func newExportCmd(root *Root) *cobra.Command {
	var (
		dest     string
		template string
		quality  int
		longEdge int
		scope    string
	)

	cmd := &cobra.Command{
		Use:   "export <folderId> <assetId...>",
		Short: "Render and write a batch of assets through the full pipeline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID := args[0]
			assetIDs := args[1:]

			assets := make([]model.Asset, 0, len(assetIDs))
			edits := make(map[string]model.EditState, len(assetIDs))
			for _, id := range assetIDs {
				a, err := root.cat.GetAsset(id)
				if err != nil {
					return fmt.Errorf("asset %s: %w", id, err)
				}
				if a.FolderID != folderID {
					return fmt.Errorf("asset %s is not in folder %s", id, folderID)
				}
				assets = append(assets, *a)
				edit, err := root.cat.GetEditState(id)
				if err != nil {
					return err
				}
				edits[id] = edit
			}

			req := exporter.Request{
				Assets:      assets,
				Edits:       edits,
				Destination: dest,
				Template:    template,
				Quality:     quality,
				Resize:      exporter.Resize{LongEdgePx: longEdge},
				Scope:       exporter.Scope(scope),
			}

			summary, err := root.exp.Export(cmd.Context(), req, func(current, total int, filename string) {
				fmt.Printf("[%d/%d] %s\n", current, total, filename)
			})
			if err != nil {
				return err
			}
			fmt.Printf("exported %d/%d, %d failure(s)\n", summary.SuccessCount, len(assets), len(summary.Failures))
			for _, f := range summary.Failures {
				fmt.Printf("  failed: %s (%s): %v\n", f.AssetID, f.Filename, f.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "./export", "destination directory")
	cmd.Flags().StringVar(&template, "template", "{orig}", "filename template: {orig}, {seq:N}, {date}")
	cmd.Flags().IntVar(&quality, "quality", 85, "JPEG quality 1-100")
	cmd.Flags().IntVar(&longEdge, "long-edge", 0, "resize long edge in px; 0 disables resize")
	cmd.Flags().StringVar(&scope, "scope", string(exporter.ScopeSelection), "picks or selection")
	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/SSE/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			root.log.Info("starting server", "addr", addr)
			srv, err := server.New(addr, root.cat, root.perms, root.blobs, root.sched, root.coord, root.runner, root.exp, root.log)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "server address (host:port)")
	return cmd
}

func newPermissionsCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect and manage saved folder handles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every saved folder handle and its last-known state",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := root.perms.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\n", e.Key, e.Path, e.State)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "query <key>",
		Short: "Classify a handle's current accessibility without a user gesture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.perms.Query(args[0])
			if err != nil {
				return err
			}
			fmt.Println(state)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "request <key>",
		Short: "Re-verify a handle under a user gesture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := root.perms.Request(args[0])
			if err != nil {
				return err
			}
			fmt.Println(state)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deny <key>",
		Short: "Mark a handle denied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.perms.Deny(args[0])
		},
	})

	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Database Path: %s\n", root.cfg.Paths.DatabasePath)
			fmt.Printf("Permission DB Path: %s\n", root.cfg.Paths.PermissionDBPath)
			fmt.Printf("Blob Store Root: %s\n", root.cfg.Paths.BlobStoreRoot)
			fmt.Printf("Default Export Dir: %s\n", root.cfg.Paths.DefaultExportDir)
			fmt.Printf("Thumbnail Workers: %d\n", root.cfg.Processing.ThumbnailWorkers)
			fmt.Printf("Export Workers: %d\n", root.cfg.Processing.ExportWorkers)
			fmt.Printf("Scheduler Queue Cap: %d\n", root.cfg.Scheduler.QueueCap)
			fmt.Printf("JPEG Quality: %d\n", root.cfg.Quality.JPEGQuality)
			fmt.Printf("Log Level: %s\n", root.cfg.Logging.Level)
			return nil
		},
	})
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("photonic v1.0.0")
		},
	}
}

