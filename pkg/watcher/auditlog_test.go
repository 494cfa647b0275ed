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

package watcher_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/spotdex/pkg/watcher"
)

// fakeMutator records dispatched events; every call counts as one mutation.
type fakeMutator struct {
	mu      sync.Mutex
	imports []string
	deletes []string
	renames [][2]string
}

func (m *fakeMutator) ImportPath(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports = append(m.imports, path)
	return 1
}

func (m *fakeMutator) DeletePath(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, path)
	return 1
}

func (m *fakeMutator) RenamePath(src, dst string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames = append(m.renames, [2]string{src, dst})
	return 1
}

func (m *fakeMutator) snapshot() ([]string, []string, [][2]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.imports...),
		append([]string(nil), m.deletes...),
		append([][2]string(nil), m.renames...)
}

const testSleep = 10 * time.Millisecond

func newAuditLog(t *testing.T, initial string) (string, *fakeMutator, *watcher.AuditLogWatcher) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	mutator := &fakeMutator{}
	w := watcher.NewAuditLogWatcher(path, testSleep, mutator)
	require.True(t, w.Start())
	return path, mutator, w
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line)
	require.NoError(t, err)
}

func TestStartRequiresConfiguredLog(t *testing.T) {
	w := watcher.NewAuditLogWatcher("", testSleep, &fakeMutator{})
	assert.False(t, w.Start())

	w = watcher.NewAuditLogWatcher(filepath.Join(t.TempDir(), "missing.log"), testSleep, &fakeMutator{})
	assert.False(t, w.Start())
}

func TestWatchIgnoresHistoryBeforeStart(t *testing.T) {
	path, mutator, w := newAuditLog(t, "u|ip|mkdirat|ok|/data/old\n")

	appendLine(t, path, "u|ip|mkdirat|ok|/data/new\n")
	changes := w.Watch(100 * time.Millisecond)

	imports, _, _ := mutator.snapshot()
	assert.Equal(t, 1, changes)
	assert.Equal(t, []string{"/data/new"}, imports)
}

func TestAuditLineDispatch(t *testing.T) {
	path, mutator, w := newAuditLog(t, "")

	appendLine(t, path, "u|ip|openat|ok|w|/data/d.txt\n")
	appendLine(t, path, "u|ip|openat|ok|r|/data/read-only.txt\n")
	appendLine(t, path, "u|ip|mkdirat|ok|/data/newdir\n")
	appendLine(t, path, "u|ip|unlinkat|ok|/data/a.txt\n")
	appendLine(t, path, "u|ip|renameat|ok|/data/sub|/data/sub2\n")
	appendLine(t, path, "u|ip|renameat|ok|/data/a.txt:xattr|/data/b.txt\n")
	appendLine(t, path, "u|ip|fstatat|ok|/data/ignored.txt\n")
	appendLine(t, path, "not an audit line\n")
	appendLine(t, path, "u|ip|openat|fail|w|/data/failed.txt\n")

	changes := w.Watch(100 * time.Millisecond)

	imports, deletes, renames := mutator.snapshot()
	assert.Equal(t, []string{"/data/d.txt", "/data/newdir"}, imports)
	assert.Equal(t, []string{"/data/a.txt"}, deletes)
	assert.Equal(t, [][2]string{{"/data/sub", "/data/sub2"}}, renames)
	assert.Equal(t, 4, changes)
}

func TestWatchRecoversFromCopytruncate(t *testing.T) {
	// A long preamble guarantees the read offset exceeds the truncated size.
	path, mutator, w := newAuditLog(t, "preamble preamble preamble preamble preamble\n")

	appendLine(t, path, "u|ip|mkdirat|ok|/data/before\n")
	require.Equal(t, 1, w.Watch(100*time.Millisecond))

	// copytruncate: the file shrinks in place.
	require.NoError(t, os.WriteFile(path, []byte("u|ip|mkdirat|ok|/data/after\n"), 0o644))

	changes := w.Watch(200 * time.Millisecond)

	imports, _, _ := mutator.snapshot()
	assert.Equal(t, 1, changes)
	assert.Equal(t, []string{"/data/before", "/data/after"}, imports)
}

func TestWatchRecoversFromRenameAndRecreate(t *testing.T) {
	path, mutator, w := newAuditLog(t, "u|ip|mkdirat|ok|/data/history\n")

	require.NoError(t, os.Rename(path, path+".1"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("u|ip|mkdirat|ok|/data/fresh\n"), 0o644)
	}()

	changes := w.Watch(500 * time.Millisecond)

	imports, _, _ := mutator.snapshot()
	assert.Equal(t, 1, changes)
	assert.Equal(t, []string{"/data/fresh"}, imports)
}

func TestWatchDisablesWhenLogNeverReappears(t *testing.T) {
	path, mutator, w := newAuditLog(t, "")

	require.NoError(t, os.Rename(path, path+".1"))

	assert.Equal(t, 0, w.Watch(100*time.Millisecond))

	// Disabled sources keep reporting zero changes without blocking.
	start := time.Now()
	assert.Equal(t, 0, w.Watch(10*time.Second))
	assert.Less(t, time.Since(start), time.Second)

	imports, deletes, renames := mutator.snapshot()
	assert.Empty(t, imports)
	assert.Empty(t, deletes)
	assert.Empty(t, renames)
}
