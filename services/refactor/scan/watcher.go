// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/refactorbench/services/refactor/config"
	"github.com/AleutianAI/refactorbench/services/refactor/selector"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	// DefaultDebounce coalesces bursts of writes to the same file.
	DefaultDebounce = 200 * time.Millisecond

	// DefaultRescanRate bounds rescans per second across all files.
	DefaultRescanRate = 20

	// DefaultRescanBurst allows short bursts above the steady rate.
	DefaultRescanBurst = 10
)

// Rescan is the outcome of re-selecting one changed file.
type Rescan struct {
	FilePath   string
	Candidates []selector.Candidate

	// Err is set when the file could not be read or parsed.
	Err error
}

// Watcher re-runs selection for source files that change under a root.
//
// Description:
//
//	fsnotify is not recursive, so every non-excluded directory is added at
//	start and new directories are added as they appear. Create and write
//	events for matching files are debounced per path and then rescanned
//	under a shared rate limit.
//
// Thread Safety:
//
//	Run must be called once. The callback is invoked from Run's goroutine.
type Watcher struct {
	root     string
	cfg      *config.Config
	scanner  *Scanner
	watcher  *fsnotify.Watcher
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over root. Run closes it on return; call
// Close instead when Run is never started.
func NewWatcher(root string, cfg *config.Config, scanner *Scanner) (*Watcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		cfg:      cfg,
		scanner:  scanner,
		watcher:  fw,
		debounce: DefaultDebounce,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRescanRate), DefaultRescanBurst),
		logger:   slog.Default().With(slog.String("component", "watcher")),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && excludedDir(d.Name(), w.cfg.ExcludeDirs) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers rescans to onRescan until ctx is canceled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context, onRescan func(Rescan)) error {
	defer w.watcher.Close()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	w.logger.Info("watching for changes", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, pending)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, path)
				if err := w.limiter.Wait(ctx); err != nil {
					return err
				}
				candidates, err := w.scanner.ScanFile(ctx, path)
				onRescan(Rescan{FilePath: path, Candidates: candidates, Err: err})
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, pending map[string]time.Time) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !excludedDir(filepath.Base(event.Name), w.cfg.ExcludeDirs) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("cannot watch new directory",
						slog.String("dir", event.Name),
						slog.String("error", err.Error()),
					)
				}
			}
			return
		}
	}
	if !Matches(event.Name, w.cfg) {
		return
	}
	pending[event.Name] = time.Now()
}
