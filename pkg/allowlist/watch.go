// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package allowlist

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a FileList when its file changes on disk. The parent
// directory is watched because saves replace the file by renaming.
type Watcher struct {
	list     *FileList
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewWatcher creates a Watcher for list. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(list *FileList, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		list:     list,
		watcher:  fw,
		debounce: debounce,
		log:      log.With().Str("component", "allowlist_watcher").Str("path", list.path).Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It runs until Stop is called or ctx is cancelled.
// Calling Start more than once has no effect.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.startOnce.Do(func() {
		dir := filepath.Dir(w.list.path)
		if err = w.watcher.Add(dir); err != nil {
			_ = w.watcher.Close()
			close(w.done)
			err = fmt.Errorf("watch %s: %w", dir, err)
			return
		}
		go w.run(ctx)
		w.log.Debug().Str("dir", dir).Msg("Watching allow-list")
	})
	return err
}

// Stop ends the watch loop and waits for it to exit. Safe to call more
// than once, and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.startOnce.Do(func() {
		_ = w.watcher.Close()
		close(w.done)
	})
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	name := filepath.Clean(w.list.path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("File watcher error")
		case <-pending:
			pending = nil
			if err := w.list.Reload(); err != nil {
				w.log.Error().Err(err).Msg("Keeping the previous allow-list")
			}
		}
	}
}
