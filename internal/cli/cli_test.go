package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"photonic/internal/catalog"
	"photonic/internal/kernel"
	"photonic/internal/scanner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtensionFromString(t *testing.T) {
	cases := map[string]kernel.Extension{"jpg": kernel.ExtJPG, "jpeg": kernel.ExtJPEG, "arw": kernel.ExtARW}
	for in, want := range cases {
		got, err := extensionFromString(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: got %v, want %v", in, got, want)
		}
	}
	if _, err := extensionFromString("png"); err == nil {
		t.Fatalf("expected an error for an unsupported extension")
	}
}

func TestDeterministicAssetIDStableAndDistinct(t *testing.T) {
	a := deterministicAssetID("folder-1", "sub/img.jpg")
	b := deterministicAssetID("folder-1", "sub/img.jpg")
	if a != b {
		t.Fatalf("expected the same (folderId, path) to always derive the same id, got %q vs %q", a, b)
	}
	c := deterministicAssetID("folder-1", "sub/other.jpg")
	if a == c {
		t.Fatalf("expected a different path to derive a different id")
	}
	d := deterministicAssetID("folder-2", "sub/img.jpg")
	if a == d {
		t.Fatalf("expected a different folder to derive a different id")
	}
}

func writeTestJPEG(t *testing.T, path string) {
	t.Helper()
	im := kernel.NewImage(4, 4)
	blob, err := kernel.EncodeJPEG(im, 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestIngestFolderUpsertsDiscoveredAssets(t *testing.T) {
	root := t.TempDir()
	writeTestJPEG(t, filepath.Join(root, "a.jpg"))
	writeTestJPEG(t, filepath.Join(root, "b.jpg"))
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer cat.Close()

	r := NewRoot(nil, testLogger(), cat, nil, nil, nil, nil, scanner.New(testLogger()), nil, nil)

	count, err := r.ingestFolder(context.Background(), "folder-1", root, nil)
	if err != nil {
		t.Fatalf("ingestFolder: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ingested assets, got %d", count)
	}

	assets, err := cat.ListAssets(catalog.ListOptions{FolderID: "folder-1"})
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets in the catalog, got %d", len(assets))
	}
	for _, a := range assets {
		if a.WidthPx != 4 || a.HeightPx != 4 {
			t.Fatalf("expected extracted dimensions 4x4, got %dx%d", a.WidthPx, a.HeightPx)
		}
	}
}

func TestIngestFolderIsIdempotentOnRescan(t *testing.T) {
	root := t.TempDir()
	writeTestJPEG(t, filepath.Join(root, "a.jpg"))

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	defer cat.Close()

	r := NewRoot(nil, testLogger(), cat, nil, nil, nil, nil, scanner.New(testLogger()), nil, nil)

	if _, err := r.ingestFolder(context.Background(), "folder-1", root, nil); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := r.ingestFolder(context.Background(), "folder-1", root, nil); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	assets, err := cat.ListAssets(catalog.ListOptions{FolderID: "folder-1"})
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected rescanning the same file to upsert one row, got %d", len(assets))
	}
}
