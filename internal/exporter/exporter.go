// Package exporter implements C10: rendering a set of assets at full
// resolution through C4, with filename templating, collision-safe
// writes, and an optional ImageMagick fast path for the final JPEG
// re-encode (spec.md §4.10). The long-edge resize always runs through
// the pure-Go kernel.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/pipeline"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// SourceLoader resolves an asset to the bytes a pipeline.Request needs,
// via the folder-handle/permission layer.
type SourceLoader func(ctx context.Context, asset model.Asset) (kernel.DecodeRequest, error)

// Resize is the optional long-edge resize applied after the full-res
// render (spec.md §4.10 "resize: { none | longEdgePx: u32 }").
type Resize struct {
	LongEdgePx int // 0 means no resize
}

// Scope records why the caller assembled this asset list; it has no
// effect on Export itself (the caller has already filtered Assets).
type Scope string

const (
	ScopePicks     Scope = "picks"
	ScopeSelection Scope = "selection"
)

// Request is one export batch.
type Request struct {
	Assets      []model.Asset
	Edits       map[string]model.EditState // keyed by AssetID
	Destination string
	Template    string
	Quality     int // JPEG quality, 1..100
	Resize      Resize
	Scope       Scope
}

// Failure records one asset's export error.
type Failure struct {
	AssetID  string
	Filename string
	Err      error
}

// Summary is Export's return value (spec.md §4.10 "returns a summary").
type Summary struct {
	SuccessCount int
	Failures     []Failure
}

// ProgressFunc reports {current, total, currentFilename} as each asset
// finishes (spec.md §4.10).
type ProgressFunc func(current, total int, currentFilename string)

// Exporter renders and writes a batch of assets.
type Exporter struct {
	runner  *pipeline.Runner
	loader  SourceLoader
	log     *slog.Logger
	workers int
}

// New returns an Exporter. workers<=0 defaults to 2
// (config.Processing.ExportWorkers's default, spec.md §5).
func New(runner *pipeline.Runner, loader SourceLoader, log *slog.Logger, workers int) *Exporter {
	if workers <= 0 {
		workers = 2
	}
	return &Exporter{runner: runner, loader: loader, log: log, workers: workers}
}

type exportJob struct {
	index int
	asset model.Asset
}

// Export renders and writes every asset in req, continuing past
// per-asset failures (spec.md §4.10 "the export continues").
func (e *Exporter) Export(ctx context.Context, req Request, progress ProgressFunc) (Summary, error) {
	tmpl, err := ParseTemplate(req.Template)
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(req.Destination, 0o755); err != nil {
		return Summary{}, fmt.Errorf("exporter: create destination: %w", err)
	}

	jobs := make(chan exportJob)
	var (
		mu       sync.Mutex
		summary  Summary
		done     int
		total    = len(req.Assets)
		usedPath = make(map[string]bool) // reserves a destination filename across concurrent workers
	)

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				edit := req.Edits[job.asset.AssetID]
				outPath, rendErr := e.exportOne(ctx, job.asset, edit, req, tmpl, job.index+1, &mu, usedPath)

				mu.Lock()
				done++
				if rendErr != nil {
					e.log.Error("export failed", "asset", job.asset.AssetID, "error", rendErr)
					summary.Failures = append(summary.Failures, Failure{AssetID: job.asset.AssetID, Filename: job.asset.Filename, Err: rendErr})
				} else {
					summary.SuccessCount++
				}
				current := done
				mu.Unlock()

				if progress != nil {
					progress(current, total, filepath.Base(outPath))
				}
			}
		}()
	}

	for i, asset := range req.Assets {
		select {
		case jobs <- exportJob{index: i, asset: asset}:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return summary, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return summary, nil
}

// exportOne runs the five per-asset steps spec.md §4.10 lists: resolve
// source bytes, render at full resolution, optional long-edge resize,
// JPEG encode, collision-safe write.
func (e *Exporter) exportOne(ctx context.Context, asset model.Asset, edit model.EditState, req Request, tmpl Template, seq int, mu *sync.Mutex, usedPath map[string]bool) (string, error) {
	decodeReq, err := e.loader(ctx, asset)
	if err != nil {
		return "", fmt.Errorf("resolve source: %w", err)
	}

	pr := pipeline.Request{
		AssetID:     asset.AssetID,
		Quality:     pipeline.QualityFull,
		PreviewEdge: 0, // 0 == full resolution, export never downsamples in the pipeline itself
		Decode:      decodeReq,
		Rotation:    edit.Crop.Rotation.Angle + edit.Crop.Rotation.Straighten,
		Crop:        edit.Crop.Crop,
		Adjustments: edit.Adjustments,
		Curve:       edit.ToneCurve,
		Masks:       edit.Masks,
		Filter:      kernel.FilterLanczos3,
	}
	result, err := e.runner.Render(ctx, pr)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	img := result.Image
	if req.Resize.LongEdgePx > 0 {
		img = kernel.ResizeToLongEdge(img, req.Resize.LongEdgePx, kernel.FilterLanczos3)
	}

	blob, err := e.encode(img, req.Quality)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	stem := strings.TrimSuffix(asset.Filename, filepath.Ext(asset.Filename))
	rendered := tmpl.Render(RenderContext{OrigStem: stem, Seq: seq, CaptureDate: asset.CaptureDate})
	if filepath.Ext(rendered) == "" {
		rendered += ".jpg"
	}

	mu.Lock()
	outPath := resolveCollision(req.Destination, rendered, usedPath)
	usedPath[outPath] = true
	mu.Unlock()

	if err := os.WriteFile(outPath, blob, 0o644); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	return outPath, nil
}

// resolveCollision appends "-1", "-2", ... before the extension until it
// finds a filename neither on disk nor already claimed this run
// (spec.md §4.10 "Output collision resolution").
func resolveCollision(dir, filename string, used map[string]bool) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	candidate := filepath.Join(dir, filename)
	for n := 1; ; n++ {
		if !used[candidate] {
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate
			}
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
}

// encode prefers the ImageMagick fast path when it has successfully
// probed at startup, falling back to the pure-Go C1 encode kernel
// otherwise (spec.md's throughput note on very large export batches).
func (e *Exporter) encode(img *kernel.Image, quality int) ([]byte, error) {
	if probeImagick() {
		if blob, err := encodeWithImagick(img, quality); err == nil {
			return blob, nil
		} else {
			e.log.Warn("imagick fast path failed, falling back to pure-Go encoder", "error", err)
		}
	}
	return kernel.EncodeJPEG(img, quality)
}

var (
	imagickOnce      sync.Once
	imagickAvailable bool
)

// probeImagick initializes the ImageMagick wand library exactly once
// and reports whether it succeeded. A CGO library load failure only
// ever happens at startup, so one probe is enough for the process
// lifetime.
func probeImagick() bool {
	imagickOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				imagickAvailable = false
			}
		}()
		imagick.Initialize()
		imagickAvailable = true
	})
	return imagickAvailable
}

func encodeWithImagick(img *kernel.Image, quality int) ([]byte, error) {
	// Hand off via the pure-Go encoder at quality 100; the wand reapplies
	// the requested quality itself, so this high-quality (but still lossy)
	// JPEG is only a bridge into libmagickwand's faster re-encode path.
	raw, err := kernel.EncodeJPEG(img, 100)
	if err != nil {
		return nil, err
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(raw); err != nil {
		return nil, fmt.Errorf("imagick read: %w", err)
	}
	if err := mw.SetImageCompressionQuality(uint(quality)); err != nil {
		return nil, fmt.Errorf("imagick quality: %w", err)
	}
	if err := mw.SetImageFormat("JPEG"); err != nil {
		return nil, fmt.Errorf("imagick format: %w", err)
	}
	return mw.GetImageBlob(), nil
}
