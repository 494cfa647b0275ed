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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/spotdex/pkg/document"
	"github.com/kadirpekel/spotdex/pkg/elastic"
)

// Reconcile makes the engine's document set equal the filesystem's admitted
// set. It crawls every root, bulk-writes paths not yet known, and afterwards
// deletes every id that the crawl did not see again.
func (ix *Indexer) Reconcile(ctx context.Context) error {
	start := time.Now()
	ix.engine.ResetEngineTime()

	// Move the current set aside; the crawl rebuilds the known set from
	// scratch and whatever remains in stale afterwards is gone from disk.
	ix.mu.Lock()
	stale := ix.known
	ix.known = make(map[string]struct{}, len(stale))
	ix.mu.Unlock()

	slog.Info("Starting to index files and directories", "directories", ix.cfg.Directories)

	walk := &reconcileWalk{
		ix:       ix,
		stale:    stale,
		bulkSize: ix.cfg.Elasticsearch.BulkSize,
	}

	g, gctx := errgroup.WithContext(ctx)
	walk.ctx = gctx
	for _, root := range ix.cfg.Directories {
		g.Go(func() error {
			return walk.walkRoot(root)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := walk.flushLocked(); err != nil {
		return err
	}

	deleted, err := ix.deleteStale(ctx, stale)
	if err != nil {
		return err
	}

	if err := ix.engine.Refresh(ctx); err != nil {
		return err
	}

	wall := time.Since(start)
	engineTime := ix.engine.EngineTime()
	slog.Info("Indexing run done",
		"indexed", formatCount(walk.indexed),
		"deleted", formatCount(deleted),
		"duration", wall.Round(time.Millisecond),
		"elasticsearch_duration", engineTime.Round(time.Millisecond))

	reconcileRuns.Inc()
	reconcileSeconds.Set(wall.Seconds())
	engineSeconds.Set(engineTime.Seconds())

	return nil
}

// reconcileWalk is the shared state of the per-root walkers. The single
// mutex covers the bulk buffer, the stale set and the counters; flushes run
// with the lock held so they never interleave.
type reconcileWalk struct {
	ix       *Indexer
	ctx      context.Context
	bulkSize int

	mu      sync.Mutex
	buffer  []elastic.BulkOp
	stale   map[string]struct{}
	indexed int
}

func (w *reconcileWalk) walkRoot(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			slog.Warn("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if w.ctx.Err() != nil {
			return w.ctx.Err()
		}

		// Rejected entries are skipped individually; their children are
		// still visited because an anchored pattern can exclude a directory
		// without excluding everything below it.
		if !w.ix.filter.ShouldIndex(path, false) {
			return nil
		}

		return w.observe(path, d.Name())
	})
}

// observe records one crawled path, buffering a bulk write when the engine
// does not have it yet.
func (w *reconcileWalk) observe(path, name string) error {
	doc, err := w.ix.mapper.Map(path, name)
	if err != nil {
		slog.Warn("Failed to stat path", "path", path, "error", err)
		return nil
	}
	if doc == nil {
		// Vanished between discovery and stat.
		return nil
	}

	id := document.ID(path)

	w.ix.mu.Lock()
	w.ix.known[id] = struct{}{}
	w.ix.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	_, existed := w.stale[id]
	delete(w.stale, id)

	if existed {
		return nil
	}

	w.buffer = append(w.buffer, elastic.BulkOp{
		Action: elastic.BulkIndex,
		ID:     id,
		Doc:    doc,
	})
	if len(w.buffer) >= w.bulkSize {
		return w.flush()
	}
	return nil
}

// flushLocked flushes the residual buffer after the walk.
func (w *reconcileWalk) flushLocked() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// flush ships the buffer; callers hold w.mu.
func (w *reconcileWalk) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	ops := w.buffer
	w.buffer = nil

	if err := w.ix.engine.Bulk(w.ctx, ops); err != nil {
		w.ix.dumpFailedBatch(ops)
		return fmt.Errorf("bulk import failed: %w", err)
	}

	w.indexed += len(ops)
	documentsIndexed.Add(float64(len(ops)))
	slog.Info("Imported documents", "total", formatCount(w.indexed))
	return nil
}

// deleteStale removes ids the crawl no longer saw, in bulk-size batches.
// The index is refreshed first so freshly-written documents do not trip
// version conflicts.
func (ix *Indexer) deleteStale(ctx context.Context, stale map[string]struct{}) (int, error) {
	if len(stale) == 0 {
		return 0, nil
	}

	if err := ix.engine.Refresh(ctx); err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(stale))
	for id := range stale {
		ids = append(ids, id)
	}

	deleted := 0
	batch := ix.cfg.Elasticsearch.BulkSize
	for from := 0; from < len(ids); from += batch {
		to := from + batch
		if to > len(ids) {
			to = len(ids)
		}
		n, err := ix.engine.DeleteByQuery(ctx, map[string]any{
			"terms": map[string]any{"_id": ids[from:to]},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete stale documents: %w", err)
		}
		deleted += n
	}

	documentsDeleted.Add(float64(deleted))
	slog.Info("Deleted stale documents", "deleted", formatCount(deleted))
	return deleted, nil
}

// dumpFailedBatch persists a failed bulk batch for post-mortem when
// configured.
func (ix *Indexer) dumpFailedBatch(ops []elastic.BulkOp) {
	if !ix.cfg.DumpDocumentsOnError {
		return
	}

	name := fmt.Sprintf("/tmp/spotdex-failed-documents-%s.json",
		time.Now().Format("2006-01-02T15:04:05"))

	data, err := json.Marshal(ops)
	if err != nil {
		slog.Error("Failed to encode failed bulk batch", "error", err)
		return
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		slog.Error("Failed to dump failed bulk batch", "file", name, "error", err)
		return
	}
	slog.Error("Dumped the failed documents, please review and report upstream", "file", name)
}

// formatCount renders a count with space-grouped thousands, e.g. "1 234 567".
func formatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
