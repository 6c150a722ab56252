// Package scanner implements C7: an async, batched, cancellable
// recursive directory walk over a folder root, extension-filtered to
// the catalog's supported formats, plus an optional fsnotify watch that
// triggers incremental rescans (spec.md §4.7). Grounded on
// internal/fsutil's ListImages extension-set idea, generalized to
// stream batches over a channel instead of returning one big slice, and
// on the teacher's FileSystemWatcher for the fsnotify wiring.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"photonic/internal/apperr"

	"github.com/fsnotify/fsnotify"
)

// batchSize bounds memory and amortizes cross-goroutine handoff cost
// (spec.md §4.7 "Yields batches of 50").
const batchSize = 50

// yieldEvery voluntarily hands control back to the caller's progress
// loop every N files visited (spec.md §4.7 "Every ~100 files").
const yieldEvery = 100

// progressThrottle bounds the progress callback to <=10Hz (spec.md §4.7).
const progressThrottle = 100 * time.Millisecond

var supportedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".arw": true,
}

// FoundFile is one discovered file, relative to the scan root.
type FoundFile struct {
	RelPath    string
	AbsPath    string
	Filename   string
	Extension  string
	FileSize   int64
	ModifiedAt time.Time
}

// Progress is the throttled status callback payload (spec.md §4.7).
type Progress struct {
	FilesFound        int
	DirectoriesVisited int
	CurrentPath        string
	Done               bool
}

// Scanner walks one folder root, yielding batches of FoundFile and
// throttled Progress updates.
type Scanner struct {
	log *slog.Logger
}

// New returns a Scanner.
func New(log *slog.Logger) *Scanner {
	return &Scanner{log: log}
}

// Scan walks root depth-first, sending batches of up to batchSize files
// on the returned channel and progress updates via onProgress. The
// channel is closed when the walk completes, is cancelled, or fails at
// the root. ctx cancellation is checked on every directory entry.
//
// A permission error in a subdirectory is logged and that subtree is
// skipped (spec.md §4.7); a permission error at the root terminates the
// scan with apperr.ErrPermissionDenied.
func (sc *Scanner) Scan(ctx context.Context, root string, onProgress func(Progress)) (<-chan []FoundFile, <-chan error) {
	out := make(chan []FoundFile)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if _, err := os.Stat(root); err != nil {
			errCh <- rootError(err)
			return
		}

		var batch []FoundFile
		filesFound, dirsVisited := 0, 0
		lastProgress := time.Time{}
		visitedSinceYield := 0

		flush := func() {
			if len(batch) == 0 {
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
			}
			batch = nil
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return apperr.ErrCancelled
			default:
			}

			if err != nil {
				if os.IsPermission(err) {
					if path == root {
						return apperr.ErrPermissionDenied
					}
					sc.log.Warn("skipping unreadable subtree", "path", path, "error", err)
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				return err
			}

			if d.IsDir() {
				dirsVisited++
				if time.Since(lastProgress) >= progressThrottle && onProgress != nil {
					onProgress(Progress{FilesFound: filesFound, DirectoriesVisited: dirsVisited, CurrentPath: path})
					lastProgress = time.Now()
				}
				return nil
			}

			visitedSinceYield++
			if visitedSinceYield >= yieldEvery {
				visitedSinceYield = 0
				flush()
			}

			ext := strings.ToLower(filepath.Ext(d.Name()))
			if !supportedExts[ext] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			filesFound++
			batch = append(batch, FoundFile{
				RelPath:    rel,
				AbsPath:    path,
				Filename:   d.Name(),
				Extension:  strings.TrimPrefix(ext, "."),
				FileSize:   info.Size(),
				ModifiedAt: info.ModTime(),
			})
			if len(batch) >= batchSize {
				flush()
			}
			return nil
		})

		flush()

		if onProgress != nil {
			onProgress(Progress{FilesFound: filesFound, DirectoriesVisited: dirsVisited, Done: true})
		}

		switch {
		case walkErr == nil:
		case walkErr == apperr.ErrCancelled:
			errCh <- apperr.ErrCancelled
		default:
			errCh <- walkErr
		}
	}()

	return out, errCh
}

func rootError(err error) error {
	if os.IsPermission(err) {
		return apperr.ErrPermissionDenied
	}
	if os.IsNotExist(err) {
		return apperr.ErrNotFound
	}
	return err
}

// Watcher wraps fsnotify to trigger an incremental rescan callback when
// the active folder root changes on disk, generalizing the teacher's
// FileSystemWatcher (spec.md §4.7 rescan trigger is implementer-chosen;
// this module wires it through fsnotify rather than polling).
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewWatcher starts watching root and calls onChange (debounced to avoid
// a rescan storm during a large copy) whenever a relevant file event
// fires.
func NewWatcher(root string, log *slog.Logger, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, log: log}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !supportedExts[strings.ToLower(filepath.Ext(ev.Name))] {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, onChange)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warn("folder watcher error", "error", err)
			}
		}
	}()

	return w, nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.watcher.Close()
}
