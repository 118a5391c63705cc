package hostd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/astromechza/studio/pkg/adapter"
)

// Importer receives project documents found by a Watcher.
type Importer interface {
	Import(ctx context.Context, id string, document []byte) error
}

// ImportFunc adapts a function to Importer.
type ImportFunc func(ctx context.Context, id string, document []byte) error

func (f ImportFunc) Import(ctx context.Context, id string, document []byte) error {
	return f(ctx, id, document)
}

// Watcher imports project files written into a directory. The project id is
// the file name without its extension.
type Watcher struct {
	dir         string
	importer    Importer
	logger      *slog.Logger
	debounceDur time.Duration

	mu          sync.Mutex
	debounceMap map[string]time.Time
}

func NewWatcher(dir string, importer Importer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:         dir,
		importer:    importer,
		logger:      logger,
		debounceDur: 200 * time.Millisecond,
		debounceMap: make(map[string]time.Time),
	}
}

// Watch imports the files already present and then every file that settles
// after a write, until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create import dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching import dir", "dir", w.dir)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list import dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.importFile(ctx, filepath.Join(w.dir, e.Name()))
		}
	}

	debounceTicker := time.NewTicker(50 * time.Millisecond)
	defer debounceTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "err", err)
		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, adapter.ProjectExt) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var toProcess []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range toProcess {
		w.importFile(ctx, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, adapter.ProjectExt) {
		return
	}
	id := strings.TrimSuffix(name, adapter.ProjectExt)
	if !adapter.ValidProjectID(id) {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Error("failed to read project file", "path", path, "err", err)
		}
		return
	}
	if err := w.importer.Import(ctx, id, content); err != nil {
		w.logger.Error("failed to import project file", "path", path, "err", err)
	}
}

// Watcher returns a watcher importing dir into s.
func (s *Server) Watcher(dir string) *Watcher {
	return NewWatcher(dir, ImportFunc(func(ctx context.Context, id string, document []byte) error {
		_, err := s.Import(ctx, id, document)
		return err
	}), s.logger)
}
