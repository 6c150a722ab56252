package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"photonic/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func drain(t *testing.T, out <-chan []FoundFile, errCh <-chan error) ([]FoundFile, error) {
	t.Helper()
	var all []FoundFile
	var err error
	for out != nil || errCh != nil {
		select {
		case batch, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			all = append(all, batch...)
		case e, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			err = e
		}
	}
	return all, err
}

func TestScanFindsSupportedExtensionsOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), 10)
	writeFile(t, filepath.Join(root, "b.ARW"), 20)
	writeFile(t, filepath.Join(root, "sub", "c.jpeg"), 30)
	writeFile(t, filepath.Join(root, "notes.txt"), 5)

	sc := New(testLogger())
	out, errCh := sc.Scan(context.Background(), root, nil)
	found, err := drain(t, out, errCh)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 supported files discovered, got %d: %+v", len(found), found)
	}

	byName := map[string]FoundFile{}
	for _, f := range found {
		byName[f.Filename] = f
	}
	if f, ok := byName["b.ARW"]; !ok || f.Extension != "arw" {
		t.Fatalf("expected the extension lowercased to 'arw', got %+v", f)
	}
	if _, ok := byName["c.jpeg"]; !ok {
		t.Fatalf("expected a nested subdirectory file to be discovered")
	}
}

func TestScanReportsRelativeAndAbsolutePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", "a.jpg"), 10)

	sc := New(testLogger())
	out, errCh := sc.Scan(context.Background(), root, nil)
	found, err := drain(t, out, errCh)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 file, got %d", len(found))
	}
	want := filepath.Join("sub", "a.jpg")
	if found[0].RelPath != want {
		t.Fatalf("expected RelPath %q, got %q", want, found[0].RelPath)
	}
	if found[0].AbsPath != filepath.Join(root, "sub", "a.jpg") {
		t.Fatalf("expected the absolute path to be rooted at the scan root, got %q", found[0].AbsPath)
	}
}

func TestScanOfMissingRootReturnsNotFound(t *testing.T) {
	sc := New(testLogger())
	out, errCh := sc.Scan(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), nil)
	_, err := drain(t, out, errCh)
	if err != apperr.ErrNotFound {
		t.Fatalf("expected apperr.ErrNotFound for a missing root, got %v", err)
	}
}

func TestScanInvokesProgressCallbackWithFinalDoneEvent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), 10)

	var last Progress
	var calls int
	sc := New(testLogger())
	out, errCh := sc.Scan(context.Background(), root, func(p Progress) {
		calls++
		last = p
	})
	if _, err := drain(t, out, errCh); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if calls == 0 {
		t.Fatalf("expected at least one progress callback invocation")
	}
	if !last.Done {
		t.Fatalf("expected the final progress update to report Done")
	}
}

func TestScanHonorsContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "dir"+string(rune('a'+i)), "f.jpg"), 10)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := New(testLogger())
	out, errCh := sc.Scan(ctx, root, nil)
	_, err := drain(t, out, errCh)
	if err != apperr.ErrCancelled {
		t.Fatalf("expected apperr.ErrCancelled for an already-cancelled context, got %v", err)
	}
}

func TestScanEmptyRootYieldsNoFilesAndNoError(t *testing.T) {
	root := t.TempDir()
	sc := New(testLogger())
	out, errCh := sc.Scan(context.Background(), root, nil)
	found, err := drain(t, out, errCh)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no files in an empty root, got %d", len(found))
	}
}
