// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher reloads the config file when it changes on disk, so edited API
// keys take effect without a restart.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher for path. onReload is called with the freshly
// loaded config after each settled change; a change that fails to load is
// dropped and the previous config stays in effect.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		path:     path,
		watcher:  watcher,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for config changes.
func (w *Watcher) Watch() error {
	// Watch the directory rather than the file: editors replace the file on
	// save, which retires the old inode's watch.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents()
	return nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// processEvents debounces bursts of write events into one reload.
func (w *Watcher) processEvents() {
	var timer *time.Timer
	base := filepath.Base(w.path)

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Rename == fsnotify.Rename {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the next explicit reload still works.
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		return
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
