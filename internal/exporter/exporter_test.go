package exporter

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"photonic/internal/kernel"
	"photonic/internal/model"
	"photonic/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSourceBytes(t *testing.T) []byte {
	t.Helper()
	im := kernel.NewImage(20, 14)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			im.Set(x, y, uint8(x*5), uint8(y*5), 64)
		}
	}
	blob, err := kernel.EncodeJPEG(im, 90)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return blob
}

func newTestExporter(t *testing.T, source []byte) *Exporter {
	t.Helper()
	loader := func(ctx context.Context, asset model.Asset) (kernel.DecodeRequest, error) {
		return kernel.DecodeRequest{Bytes: source, Ext: kernel.ExtJPG}, nil
	}
	runner := pipeline.NewRunner(1 << 20)
	return New(runner, loader, testLogger(), 2)
}

func TestExportWritesEveryAssetAndReportsProgress(t *testing.T) {
	source := testSourceBytes(t)
	e := newTestExporter(t, source)
	dest := t.TempDir()

	assets := []model.Asset{
		{AssetID: "a1", Filename: "one.jpg"},
		{AssetID: "a2", Filename: "two.jpg"},
		{AssetID: "a3", Filename: "three.jpg"},
	}

	var progressCalls int
	summary, err := e.Export(context.Background(), Request{
		Assets:      assets,
		Destination: dest,
		Template:    "{orig}",
		Quality:     85,
	}, func(current, total int, filename string) {
		progressCalls++
		if total != len(assets) {
			t.Fatalf("expected total %d, got %d", len(assets), total)
		}
	})
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	if summary.SuccessCount != len(assets) {
		t.Fatalf("expected %d successes, got %d (failures: %+v)", len(assets), summary.SuccessCount, summary.Failures)
	}
	if len(summary.Failures) != 0 {
		t.Fatalf("expected no failures, got %+v", summary.Failures)
	}
	if progressCalls != len(assets) {
		t.Fatalf("expected %d progress callbacks, got %d", len(assets), progressCalls)
	}

	for _, name := range []string{"one.jpg", "two.jpg", "three.jpg"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}
}

func TestExportRecordsPerAssetFailures(t *testing.T) {
	source := testSourceBytes(t)
	e := newTestExporter(t, source)
	e.loader = func(ctx context.Context, asset model.Asset) (kernel.DecodeRequest, error) {
		if asset.AssetID == "bad" {
			return kernel.DecodeRequest{}, os.ErrNotExist
		}
		return kernel.DecodeRequest{Bytes: source, Ext: kernel.ExtJPG}, nil
	}
	dest := t.TempDir()

	summary, err := e.Export(context.Background(), Request{
		Assets:      []model.Asset{{AssetID: "good", Filename: "good.jpg"}, {AssetID: "bad", Filename: "bad.jpg"}},
		Destination: dest,
		Template:    "{orig}",
		Quality:     85,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	if summary.SuccessCount != 1 {
		t.Fatalf("expected 1 success, got %d", summary.SuccessCount)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].AssetID != "bad" {
		t.Fatalf("expected a single failure for asset 'bad', got %+v", summary.Failures)
	}
}

func TestResolveCollisionAppendsSuffix(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shot.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	used := make(map[string]bool)
	got := resolveCollision(dir, "shot.jpg", used)
	want := filepath.Join(dir, "shot-1.jpg")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveCollisionTracksUsedWithinRun(t *testing.T) {
	dir := t.TempDir()
	used := make(map[string]bool)

	first := resolveCollision(dir, "shot.jpg", used)
	used[first] = true
	second := resolveCollision(dir, "shot.jpg", used)

	if first == second {
		t.Fatalf("expected distinct paths for two in-flight claims of the same filename, got %q twice", first)
	}
}

func TestExportAppliesTemplateSequenceNumbers(t *testing.T) {
	source := testSourceBytes(t)
	e := newTestExporter(t, source)
	dest := t.TempDir()

	assets := []model.Asset{
		{AssetID: "a1", Filename: "x.jpg"},
		{AssetID: "a2", Filename: "y.jpg"},
	}
	summary, err := e.Export(context.Background(), Request{
		Assets:      assets,
		Destination: dest,
		Template:    "export-{seq:2}",
		Quality:     85,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	if summary.SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", summary.SuccessCount)
	}
	if _, err := os.Stat(filepath.Join(dest, "export-01.jpg")); err != nil {
		t.Fatalf("expected export-01.jpg to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "export-02.jpg")); err != nil {
		t.Fatalf("expected export-02.jpg to exist: %v", err)
	}
}
