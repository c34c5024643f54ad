// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher bridges fsnotify's raw per-path events to Router.Route,
// recursively watching every directory under each Target's root and
// debouncing rapid-fire events for the same path.
type Watcher struct {
	fsw    *fsnotify.Watcher
	router *Router
	logger *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]pendingEvent

	dirToRepo map[string]string // watched directory -> owning repository name

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type pendingEvent struct {
	kind           EventKind
	absPath        string
	repositoryName string
}

// NewWatcher creates a Watcher and recursively adds fsnotify watches
// for every target's root directory.
func NewWatcher(router *Router, targets []Target, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:       fsw,
		router:    router,
		logger:    logger,
		debounce:  debounce,
		timers:    make(map[string]*time.Timer),
		pending:   make(map[string]pendingEvent),
		dirToRepo: make(map[string]string),
		stopCh:    make(chan struct{}),
	}

	for _, t := range targets {
		if err := w.addRecursive(t.RootPath, t.Name); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root, repositoryName string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch.add_error", "path", path, "err", err)
			return nil
		}
		w.dirToRepo[path] = repositoryName
		return nil
	})
}

// Start runs the event loop in a background goroutine until Stop is
// called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop terminates the event loop and closes the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	_ = w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch.fsnotify_error", "err", err)
		}
	}
}

func (w *Watcher) handleRaw(ctx context.Context, ev fsnotify.Event) {
	repositoryName := w.repositoryFor(ev.Name)
	if repositoryName == "" {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name, repositoryName)
		}
	}

	kind, ok := classify(ev.Op)
	if !ok {
		return
	}
	w.schedule(ctx, pendingEvent{kind: kind, absPath: ev.Name, repositoryName: repositoryName})
}

// classify maps fsnotify's operation bitmask to an EventKind: Write and
// Create become modified/created, Remove and Rename become deleted.
func classify(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return EventCreated, true
	case op&fsnotify.Write != 0:
		return EventModified, true
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return EventDeleted, true
	default:
		return "", false
	}
}

func (w *Watcher) repositoryFor(path string) string {
	dir := filepath.Dir(path)
	for {
		if name, ok := w.dirToRepo[dir]; ok {
			return name
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// schedule debounces repeated events for the same path within the
// configured window, keeping only the most recent event kind.
func (w *Watcher) schedule(ctx context.Context, ev pendingEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[ev.absPath] = ev
	if t, ok := w.timers[ev.absPath]; ok {
		t.Stop()
	}
	w.timers[ev.absPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		final, ok := w.pending[ev.absPath]
		delete(w.pending, ev.absPath)
		delete(w.timers, ev.absPath)
		w.mu.Unlock()
		if !ok {
			return
		}
		if err := w.router.Route(ctx, final.kind, final.absPath, final.repositoryName); err != nil {
			w.logger.Error("watch.route_error", "path", final.absPath, "err", err)
		}
	})
}
