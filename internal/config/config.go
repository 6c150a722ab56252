// Package config holds user-editable settings for the catalog, pipeline,
// scheduler, and exporter.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/photonic/config.json"
)

// Config is the root settings object, loaded from $PHOTONIC_CONFIG or the
// default path, falling back to defaultConfig() for anything unset.
type Config struct {
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	Cache      Cache      `json:"cache"`
	Scheduler  Scheduler  `json:"scheduler"`
	Quality    Quality    `json:"quality"`
}

// Processing captures worker-pool sizing.
type Processing struct {
	ThumbnailWorkers int `json:"thumbnail_workers"`
	ExportWorkers    int `json:"export_workers"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json (logging.Setup always writes text)
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
	MaxSize    int    `json:"max_size"`    // Max size in MB before rotation; not read by logging.Setup, which does not rotate
	MaxBackups int    `json:"max_backups"` // Number of backup files to keep; not read by logging.Setup
	MaxAge     int    `json:"max_age"`     // Days to keep log files; not read by logging.Setup
}

// Paths configures default input/output locations and persisted stores.
type Paths struct {
	DatabasePath     string `json:"database_path"`      // LiteroomCatalog sqlite file
	PermissionDBPath string `json:"permission_db_path"` // literoom-fs sqlite file
	BlobStoreRoot    string `json:"blob_store_root"`    // <storage>/literoom/{thumbnails,previews}
	DefaultExportDir string `json:"default_export_dir"`
}

// Cache controls the two-tier blob cache and the pipeline stage cache.
type Cache struct {
	MemoryLRUCapacity    int   `json:"memory_lru_capacity"`     // C6 in-memory entry cap, default 150
	PersistentByteBudget int64 `json:"persistent_byte_budget"`  // C6 on-disk byte cap
	StageCacheByteBudget int64 `json:"stage_cache_byte_budget"` // C4 stage cache byte cap
}

// Scheduler controls the priority queue bound and worker pool size.
type Scheduler struct {
	QueueCap         int `json:"queue_cap"`         // default 200
	ThumbnailWorkers int `json:"thumbnail_workers"` // default 1
}

// Quality controls default encode/resize parameters.
type Quality struct {
	JPEGQuality     int `json:"jpeg_quality"`      // default 85
	DraftShortEdge  int `json:"draft_short_edge"`  // typical 600-900
	PreviewLongEdge int `json:"preview_long_edge"` // typical 2560
	ExportLongEdge  int `json:"export_long_edge"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("PHOTONIC_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Processing: Processing{
			ThumbnailWorkers: 1,
			ExportWorkers:    2,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Paths: Paths{
			DatabasePath:     filepath.Join(os.TempDir(), "photonic-catalog.db"),
			PermissionDBPath: filepath.Join(os.TempDir(), "photonic-fs.db"),
			BlobStoreRoot:    filepath.Join(os.TempDir(), "literoom"),
			DefaultExportDir: "./export",
		},
		Cache: Cache{
			MemoryLRUCapacity:    150,
			PersistentByteBudget: 4 << 30, // 4GiB
			StageCacheByteBudget: 512 << 20,
		},
		Scheduler: Scheduler{
			QueueCap:         200,
			ThumbnailWorkers: 1,
		},
		Quality: Quality{
			JPEGQuality:     85,
			DraftShortEdge:  800,
			PreviewLongEdge: 2560,
			ExportLongEdge:  0, // 0 == source resolution
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
