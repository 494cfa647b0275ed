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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/spotdex/pkg/watcher"
)

func TestNotifyWatcherStartRequiresWatchableRoot(t *testing.T) {
	w := watcher.NewNotifyWatcher([]string{filepath.Join(t.TempDir(), "missing")}, &fakeMutator{})
	assert.False(t, w.Start())
}

func TestNotifyWatcherSeesCreateAndDelete(t *testing.T) {
	root := t.TempDir()
	mutator := &fakeMutator{}

	w := watcher.NewNotifyWatcher([]string{root}, mutator)
	require.True(t, w.Start())
	defer w.Close()

	created := filepath.Join(root, "a.txt")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(created, []byte("x"), 0o644)
		time.Sleep(100 * time.Millisecond)
		_ = os.Remove(created)
	}()

	changes := w.Watch(500 * time.Millisecond)

	imports, deletes, _ := mutator.snapshot()
	assert.Contains(t, imports, created)
	assert.Contains(t, deletes, created)
	assert.GreaterOrEqual(t, changes, 2)
}

func TestNotifyWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	mutator := &fakeMutator{}

	w := watcher.NewNotifyWatcher([]string{root}, mutator)
	require.True(t, w.Start())
	defer w.Close()

	sub := filepath.Join(root, "sub")
	inside := filepath.Join(sub, "c.txt")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.Mkdir(sub, 0o755)
		time.Sleep(150 * time.Millisecond)
		_ = os.WriteFile(inside, []byte("x"), 0o644)
	}()

	w.Watch(600 * time.Millisecond)

	imports, _, _ := mutator.snapshot()
	assert.Contains(t, imports, sub)
	assert.Contains(t, imports, inside)
}
