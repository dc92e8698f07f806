package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSource serves a catalog stored as a JSON array of objects.
type FileSource struct {
	path   string
	limit  int
	logger *slog.Logger

	mu      sync.RWMutex
	records []Record
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithLimit caps the number of records returned per lookup.
func WithLimit(n int) FileOption {
	return func(f *FileSource) {
		f.limit = n
	}
}

// WithFileLogger sets the logger used for reload diagnostics.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *FileSource) {
		f.logger = logger
	}
}

// OpenFile loads the catalog at path.
func OpenFile(path string, opts ...FileOption) (*FileSource, error) {
	f := &FileSource{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the source identifier.
func (f *FileSource) Name() string {
	return "file:" + filepath.Base(f.path)
}

// Reload re-reads the catalog file. On failure the previous records stay.
func (f *FileSource) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", f.path, err)
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
	return nil
}

// Records returns every record currently loaded.
func (f *FileSource) Records() []Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// Lookup filters the loaded records.
func (f *FileSource) Lookup(ctx context.Context, params SearchParams) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Filter(f.records, params, f.limit), nil
}

// Watch reloads the catalog whenever the file is written or replaced,
// until ctx is cancelled. The returned channel receives the outcome of
// every reload and is closed when watching stops.
func (f *FileSource) Watch(ctx context.Context) (<-chan error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so editors that replace the file are seen.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return nil, err
	}

	reloads := make(chan error, 8)
	target := filepath.Clean(f.path)

	go func() {
		defer close(reloads)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				err := f.Reload()
				if err != nil {
					f.logger.Warn("catalog reload failed", "path", f.path, "error", err)
				} else {
					f.logger.Info("catalog reloaded", "path", f.path, "records", len(f.Records()))
				}
				select {
				case reloads <- err:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("catalog watcher error", "path", f.path, "error", err)
			}
		}
	}()

	return reloads, nil
}
