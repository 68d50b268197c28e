package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/nccd"
)

// Submitter receives extraction requests built from watched files.
type Submitter interface {
	Submit(ctx context.Context, req extract.Request) error
}

// Watcher submits files that appear under a directory tree. A file is
// submitted once it has seen no writes for the settle interval.
type Watcher struct {
	root    string
	pattern string
	docType nccd.DocumentType
	submit  Submitter
	settle  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher creates a Watcher for files under root whose slash-separated
// relative path matches pattern. If settle is <= 0, it defaults to 500ms.
func NewWatcher(root, pattern string, docType nccd.DocumentType, submit Submitter, settle time.Duration) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", pattern)
	}
	if err := extract.Validate(extract.Request{DocumentType: docType, Text: "-"}); err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{
		root:    root,
		pattern: pattern,
		docType: docType,
		submit:  submit,
		settle:  settle,
		logger:  slog.Default(),
		pending: make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			w.RunOnce(ctx, now)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
		if err := w.addTree(fw, ev.Name); err != nil {
			w.logger.Warn("could not watch new directory", "path", ev.Name, "error", err)
		}
		return
	}
	if !w.Matches(ev.Name) {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

// Matches reports whether path, taken relative to the watched root, matches
// the pattern.
func (w *Watcher) Matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// RunOnce submits every pending file that has settled by now and returns how
// many were submitted. Failures are logged and the file is dropped.
func (w *Watcher) RunOnce(ctx context.Context, now time.Time) int {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	submitted := 0
	for _, path := range ready {
		if err := w.process(ctx, path); err != nil {
			w.logger.Warn("file submission failed", "path", path, "error", err)
			continue
		}
		submitted++
	}
	return submitted
}

func (w *Watcher) process(ctx context.Context, path string) error {
	doc, err := ReadDocument(path)
	if err != nil {
		return err
	}
	if err := w.submit.Submit(ctx, BuildRequest(w.docType, []Document{doc})); err != nil {
		return fmt.Errorf("submitting: %w", err)
	}
	w.logger.Info("document submitted", "path", path, "document_type", w.docType)
	return nil
}
