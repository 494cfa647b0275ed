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

// Package watcher provides the live change sources that feed mutations to
// the indexer between full reconciliation runs: kernel filesystem
// notifications and a tailed Samba audit log.
package watcher

import "time"

// Mutator applies a single path change against the index. Each method
// returns the number of mutations actually written (0 when the event was
// filtered out).
type Mutator interface {
	ImportPath(path string) int
	DeletePath(path string) int
	RenamePath(src, dst string) int
}

// Source is a live change stream. Start reports whether the source could be
// initialized; when it returns false the daemon falls back to sleeping
// between reconciles. Watch applies events as they arrive until the timeout
// elapses and returns the number of mutations applied.
type Source interface {
	Start() bool
	Watch(timeout time.Duration) int
}
