// Copyright 2025 Kadir Pekel
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

package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// NotifyWatcher watches the configured roots through kernel filesystem
// notifications. Watches are registered recursively and new directories are
// added as they appear.
//
// The kernel reports a rename as a RENAME event on the source plus a CREATE
// on the destination, so renames degrade to delete-then-create here; the
// audit-log source delivers true two-path renames, and stragglers inside a
// renamed subtree are swept up by the next reconcile.
type NotifyWatcher struct {
	roots   []string
	mutator Mutator
	watcher *fsnotify.Watcher
}

// NewNotifyWatcher creates a watcher over roots dispatching to mutator.
func NewNotifyWatcher(roots []string, mutator Mutator) *NotifyWatcher {
	return &NotifyWatcher{roots: roots, mutator: mutator}
}

// Start registers watches on every directory under the roots. It returns
// false when the notification facility is unavailable or no root could be
// watched.
func (w *NotifyWatcher) Start() bool {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to initialize filesystem notifications", "error", err)
		return false
	}
	w.watcher = watcher

	watched := 0
	for _, root := range w.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("Skipping unreadable path", "path", path, "error", err)
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if err := watcher.Add(path); err != nil {
				slog.Warn("Failed to watch directory", "path", path, "error", err)
				return nil
			}
			watched++
			return nil
		})
		if err != nil {
			slog.Warn("Failed to walk root for watching", "root", root, "error", err)
		}
	}

	if watched == 0 {
		slog.Error("No directories could be watched", "roots", w.roots)
		_ = watcher.Close()
		w.watcher = nil
		return false
	}

	slog.Info("Watching for filesystem changes", "directories", watched)
	return true
}

// Close releases the kernel watch descriptors.
func (w *NotifyWatcher) Close() {
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
}

// Watch drains events until the timeout elapses and returns the number of
// mutations applied.
func (w *NotifyWatcher) Watch(timeout time.Duration) int {
	if w.watcher == nil {
		return 0
	}

	slog.Info("Monitoring filesystem notifications until next indexing run", "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	changes := 0
	for {
		select {
		case <-deadline.C:
			return changes

		case event, ok := <-w.watcher.Events:
			if !ok {
				return changes
			}
			changes += w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return changes
			}
			slog.Error("Filesystem notification error", "error", err)
		}
	}
}

func (w *NotifyWatcher) handle(event fsnotify.Event) int {
	path := event.Name

	// Extended-attribute side channels are not real paths.
	if strings.Contains(path, ":") {
		return 0
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				slog.Warn("Failed to watch new directory", "path", path, "error", err)
			}
		}
		return w.mutator.ImportPath(path)

	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		return w.mutator.DeletePath(path)

	default:
		// Writes and chmods do not change the indexed path set.
		return 0
	}
}
