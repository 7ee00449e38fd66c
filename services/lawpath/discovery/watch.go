// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a watch-triggered run.
const DefaultDebounce = 2 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce is the quiet period after the last change. Default: 2s
	Debounce time.Duration

	Logger *slog.Logger
}

// Watch calls onChange whenever files under root change.
//
// Description:
//
//	Watches root and every subdirectory, adding directories created later.
//	Bursts of events are collapsed: onChange runs once the tree has been
//	quiet for Debounce. Temporary files ending in .tmp or ~ are ignored.
//	An error from onChange is logged and watching continues.
//
// Inputs:
//
//	ctx - Watching stops when ctx is done.
//	root - Directory to watch.
//	onChange - Called from the watch goroutine; never concurrently.
//
// Outputs:
//
//	error - Non-nil if the watcher could not be started. Returns nil once
//	ctx is done.
func Watch(ctx context.Context, root string, opts *WatchOptions, onChange func(context.Context) error) error {
	if opts == nil {
		opts = &WatchOptions{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root); err != nil {
		return err
	}
	logger.Info("watching discovery sources", slog.String("root", root))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoredChange(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.Debounce)
			}
			timerC = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.String("error", err.Error()))

		case <-timerC:
			timerC = nil
			if err := onChange(ctx); err != nil {
				logger.Warn("watch-triggered discovery failed", slog.String("error", err.Error()))
			}
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func ignoredChange(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, "~") || strings.HasPrefix(base, ".")
}
