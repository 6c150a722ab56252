// Package logging provides photonic's slog setup: console output plus an
// optional log file named for the day Setup runs (not rotated
// afterwards), and structured helpers for render/export/scan events.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photonic/internal/config"
)

// New returns a slog.Logger with the provided level string (info, debug, warn, error).
// format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Setup configures global logging: stdout plus, when FileOutput is set,
// <LogDir>/photonic-YYYY-MM-DD.log for the day Setup runs and a
// photonic-current.log symlink to it. The file is not rotated while the
// process runs; MaxSize, MaxBackups and MaxAge are not read, and output
// always uses TraditionalHandler's text layout whatever Format says.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	level := parseLevel(cfg.Logging.Level)

	if cfg.Logging.FileOutput {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if cfg.Logging.FileOutput {
		logFile := filepath.Join(cfg.Logging.LogDir, fmt.Sprintf("photonic-%s.log",
			time.Now().Format("2006-01-02")))

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %v", err)
		}

		writers = append(writers, file)

		currentLogPath := filepath.Join(cfg.Logging.LogDir, "photonic-current.log")
		os.Remove(currentLogPath)
		_ = os.Symlink(filepath.Base(logFile), currentLogPath)
	}

	multiWriter := io.MultiWriter(writers...)
	logger := log.New(multiWriter, "", log.LstdFlags)

	handler := &TraditionalHandler{logger: logger, level: level}
	slogLogger := slog.New(handler)
	slog.SetDefault(slogLogger)

	slogLogger.Info("photonic logging initialized",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file_output", cfg.Logging.FileOutput,
		"log_dir", cfg.Logging.LogDir,
	)

	return slogLogger, nil
}

// TraditionalHandler implements slog.Handler with traditional log formatting.
type TraditionalHandler struct {
	logger *log.Logger
	level  slog.Level
}

func (h *TraditionalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TraditionalHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String()

	msg := r.Message
	attrs := make([]string, 0)

	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})

	if len(attrs) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(attrs, " "))
	}

	h.logger.Printf("[%s] %s", strings.ToUpper(level), msg)

	return nil
}

func (h *TraditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *TraditionalHandler) WithGroup(name string) slog.Handler {
	return h
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogRenderStart logs the beginning of a pipeline render.
func LogRenderStart(logger *slog.Logger, assetID, stage string, opts map[string]any) {
	logger.Info("render started", "asset_id", assetID, "stage", stage, "options", opts)
}

// LogRenderComplete logs a successful render.
func LogRenderComplete(logger *slog.Logger, assetID, stage string, duration time.Duration, meta map[string]any) {
	logger.Info("render completed",
		"asset_id", assetID,
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
		"result", meta,
	)
}

// LogRenderError logs a render failure.
func LogRenderError(logger *slog.Logger, assetID, stage string, duration time.Duration, err error) {
	logger.Error("render failed",
		"asset_id", assetID,
		"stage", stage,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)
}

// LogExportItem logs one exported asset's outcome.
func LogExportItem(logger *slog.Logger, assetID, outputPath string, err error) {
	if err != nil {
		logger.Error("export item failed", "asset_id", assetID, "error", err.Error())
		return
	}
	logger.Info("export item completed", "asset_id", assetID, "output", outputPath)
}

// LogScanProgress logs a throttled folder-scan progress tick.
func LogScanProgress(logger *slog.Logger, folderID string, filesFound, dirsVisited int, currentPath string) {
	logger.Debug("scan progress",
		"folder_id", folderID,
		"files_found", filesFound,
		"directories_visited", dirsVisited,
		"current_path", currentPath,
	)
}
