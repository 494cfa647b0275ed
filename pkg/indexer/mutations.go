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

package indexer

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/spotdex/pkg/document"
)

// renameSearchLimit caps the subtree query behind a rename. Subtrees larger
// than this migrate partially until the next reconcile sweeps the rest.
const renameSearchLimit = 100

// ImportPath indexes one path reported as created. It returns 1 when a
// document was written, 0 when the event was dropped.
func (ix *Indexer) ImportPath(path string) int {
	if strings.Contains(path, ":") {
		return 0
	}
	if !ix.filter.ShouldIndex(path, true) {
		return 0
	}

	doc, err := ix.mapper.Map(path, filepath.Base(path))
	if err != nil {
		slog.Warn("Failed to stat path", "path", path, "error", err)
		return 0
	}
	if doc == nil {
		// Already gone again.
		return 0
	}

	id := document.ID(path)
	if err := ix.engine.IndexDocument(ix.ctx, id, doc); err != nil {
		ix.setFatal(err)
		return 0
	}

	ix.mu.Lock()
	ix.known[id] = struct{}{}
	ix.mu.Unlock()

	slog.Debug("Imported path", "path", path)
	mutationsApplied.WithLabelValues("create").Inc()
	return 1
}

// DeletePath removes one path reported as deleted. A document missing from
// the engine counts as success.
func (ix *Indexer) DeletePath(path string) int {
	if strings.Contains(path, ":") {
		// Deleting an xattr stream must not delete the file's document.
		return 0
	}
	if !ix.filter.ShouldIndex(path, true) {
		return 0
	}

	id := document.ID(path)

	ix.mu.Lock()
	delete(ix.known, id)
	ix.mu.Unlock()

	if err := ix.engine.DeleteDocument(ix.ctx, id); err != nil {
		ix.setFatal(err)
		return 0
	}

	slog.Debug("Deleted path", "path", path)
	mutationsApplied.WithLabelValues("delete").Inc()
	return 1
}

// RenamePath moves src and everything indexed below it to dst. The moved
// subtree is discovered by querying the engine for documents scoped under
// src; each hit is deleted and recreated at its new path. The id changes
// with the path, so this is delete-then-create, never an id update.
func (ix *Indexer) RenamePath(src, dst string) int {
	pairs := map[string]string{src: dst}

	result, err := ix.engine.SearchQueryString(ix.ctx, scopeQuery(src), 0, renameSearchLimit)
	if err != nil {
		ix.setFatal(err)
		return 0
	}

	if len(result.Hits) >= renameSearchLimit {
		slog.Warn("Rename subtree query hit the result cap, remainder is healed by the next reconcile",
			"src", src, "cap", renameSearchLimit)
	}

	prefix := src + "/"
	for _, hit := range result.Hits {
		old := hit.Source.Path.Real
		// The fulltext scope match can overreach; only paths truly below src
		// moved.
		if !strings.HasPrefix(old, prefix) {
			continue
		}
		pairs[old] = dst + old[len(src):]
	}

	changes := 0
	for oldPath, newPath := range pairs {
		changes += ix.DeletePath(oldPath)
		changes += ix.ImportPath(newPath)
	}

	slog.Debug("Renamed path", "src", src, "dst", dst, "changes", changes)
	mutationsApplied.WithLabelValues("rename").Inc()
	return changes
}
