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

package indexer_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/spotdex/pkg/config"
	"github.com/kadirpekel/spotdex/pkg/document"
	"github.com/kadirpekel/spotdex/pkg/elastic"
	"github.com/kadirpekel/spotdex/pkg/indexer"
)

// fakeEngine is an in-memory Engine double backed by an id→document map.
type fakeEngine struct {
	mu        sync.Mutex
	docs      map[string]document.Document
	prepared  bool
	refreshes int
	bulkCalls int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: make(map[string]document.Document)}
}

func (e *fakeEngine) PrepareIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared = true
	return nil
}

func (e *fakeEngine) Bulk(ctx context.Context, ops []elastic.BulkOp) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulkCalls++
	for _, op := range ops {
		switch op.Action {
		case elastic.BulkIndex:
			e.docs[op.ID] = *op.Doc
		case elastic.BulkDelete:
			delete(e.docs, op.ID)
		}
	}
	return nil
}

var scopeRe = regexp.MustCompile(`path\.real\.fulltext:"([^"]+)"`)

func (e *fakeEngine) DeleteByQuery(ctx context.Context, query map[string]any) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := query["match_all"]; ok {
		n := len(e.docs)
		e.docs = make(map[string]document.Document)
		return n, nil
	}

	terms, _ := query["terms"].(map[string]any)
	ids, _ := terms["_id"].([]string)
	n := 0
	for _, id := range ids {
		if _, ok := e.docs[id]; ok {
			delete(e.docs, id)
			n++
		}
	}
	return n, nil
}

func (e *fakeEngine) IndexDocument(ctx context.Context, id string, doc *document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[id] = *doc
	return nil
}

func (e *fakeEngine) DeleteDocument(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, id) // missing id is success
	return nil
}

func (e *fakeEngine) ScrollIDs(ctx context.Context, batchSize int, fn func(id string)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.docs {
		fn(id)
	}
	return nil
}

func (e *fakeEngine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshes++
	return nil
}

func (e *fakeEngine) SearchQueryString(ctx context.Context, query string, from, size int) (*elastic.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := scopeRe.FindStringSubmatch(query)
	result := &elastic.SearchResult{}
	if m == nil {
		return result, nil
	}
	scope := m[1]

	var paths []string
	for _, doc := range e.docs {
		if len(doc.Path.Real) >= len(scope) && doc.Path.Real[:len(scope)] == scope {
			paths = append(paths, doc.Path.Real)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		if len(result.Hits) >= size {
			break
		}
		id := document.ID(path)
		doc := e.docs[id]
		raw, _ := json.Marshal(map[string]any{"_id": id, "_source": doc})
		result.Hits = append(result.Hits, elastic.Hit{ID: id, Source: doc, Raw: raw})
	}
	result.Total = len(paths)
	return result, nil
}

func (e *fakeEngine) PutSlowlogThresholds(ctx context.Context, value string) error { return nil }
func (e *fakeEngine) EngineTime() time.Duration                                    { return 0 }
func (e *fakeEngine) ResetEngineTime()                                             {}
func (e *fakeEngine) Index() string                                                { return "files" }

func (e *fakeEngine) ids() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]struct{}, len(e.docs))
	for id := range e.docs {
		out[id] = struct{}{}
	}
	return out
}

func (e *fakeEngine) has(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.docs[document.ID(path)]
	return ok
}

// newTestIndexer builds an indexer over a temp root with exclusions matching
// the reference scenario: a.txt and sub/c.txt are admitted, b.tmp is not.
func newTestIndexer(t *testing.T) (string, *fakeEngine, *indexer.Indexer) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.tmp"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "c.txt"), []byte("c"), 0o644))

	cfg := &config.Config{
		Directories: []string{root},
		Exclusions: config.ExclusionsConfig{
			PartialPaths: []string{".tmp"},
		},
		WaitTime: "1s",
	}
	cfg.SetDefaults()
	cfg.Elasticsearch.BulkSize = 2 // exercise mid-walk flushing
	require.NoError(t, cfg.Validate())

	engine := newFakeEngine()
	ix, err := indexer.New(cfg, engine)
	require.NoError(t, err)
	return root, engine, ix
}

func TestReconcileIndexesAdmittedPaths(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.RunOnce(ctx))
	assert.True(t, engine.prepared)

	assert.True(t, engine.has(root))
	assert.True(t, engine.has(filepath.Join(root, "a.txt")))
	assert.True(t, engine.has(filepath.Join(root, "sub")))
	assert.True(t, engine.has(filepath.Join(root, "sub", "c.txt")))
	assert.False(t, engine.has(filepath.Join(root, "b.tmp")))

	// The known-id set equals the engine contents after a reconcile.
	assert.Equal(t, engine.ids(), ix.KnownIDs())
}

func TestReconcileIsIdempotent(t *testing.T) {
	_, engine, ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.RunOnce(ctx))
	before := engine.ids()
	bulksBefore := engine.bulkCalls

	require.NoError(t, ix.Reconcile(ctx))

	assert.Equal(t, before, engine.ids())
	assert.Equal(t, bulksBefore, engine.bulkCalls, "an unchanged tree must not be re-imported")
}

func TestReconcilePicksUpAddedAndRemovedFiles(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.RunOnce(ctx))

	added := filepath.Join(root, "d.txt")
	removed := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(added, []byte("d"), 0o644))
	require.NoError(t, os.Remove(removed))

	require.NoError(t, ix.Reconcile(ctx))

	assert.True(t, engine.has(added))
	assert.False(t, engine.has(removed))
	assert.Equal(t, engine.ids(), ix.KnownIDs())
}

func TestImportPath(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	require.NoError(t, ix.RunOnce(context.Background()))

	created := filepath.Join(root, "d.txt")
	assert.Equal(t, 1, ix.ImportPath(created))
	assert.True(t, engine.has(created))
	assert.True(t, ix.Knows(document.ID(created)))
}

func TestImportPathDropsFilteredEvents(t *testing.T) {
	root, engine, ix := newTestIndexer(t)

	assert.Equal(t, 0, ix.ImportPath(filepath.Join(root, "x.txt:xattr")))
	assert.Equal(t, 0, ix.ImportPath(filepath.Join(root, "junk.tmp")))
	assert.Equal(t, 0, ix.ImportPath("/outside/of/roots.txt"))
	assert.Empty(t, engine.ids())
	require.NoError(t, ix.Err())
}

func TestDeletePath(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	require.NoError(t, ix.RunOnce(context.Background()))

	target := filepath.Join(root, "a.txt")
	assert.Equal(t, 1, ix.DeletePath(target))
	assert.False(t, engine.has(target))
	assert.False(t, ix.Knows(document.ID(target)))
}

func TestDeletePathOfUnknownIDSucceeds(t *testing.T) {
	root, _, ix := newTestIndexer(t)
	require.NoError(t, ix.RunOnce(context.Background()))

	known := ix.KnownIDs()
	assert.Equal(t, 1, ix.DeletePath(filepath.Join(root, "never-indexed.txt")))
	assert.Equal(t, known, ix.KnownIDs(), "deleting an absent id must not disturb the known set")
	require.NoError(t, ix.Err())
}

func TestDeletePathDropsColonPaths(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	require.NoError(t, ix.RunOnce(context.Background()))

	target := filepath.Join(root, "a.txt")
	assert.Equal(t, 0, ix.DeletePath(target+":xattr"))
	assert.True(t, engine.has(target), "dropping an xattr must not delete the file's document")
}

func TestRenamePathMovesSubtree(t *testing.T) {
	root, engine, ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.RunOnce(ctx))

	src := filepath.Join(root, "sub")
	dst := filepath.Join(root, "sub2")
	oldChild := filepath.Join(src, "c.txt")
	newChild := filepath.Join(dst, "c.txt")

	changes := ix.RenamePath(src, dst)
	require.NoError(t, ix.Err())
	assert.Equal(t, 4, changes)

	assert.False(t, engine.has(src))
	assert.False(t, engine.has(oldChild))
	assert.True(t, engine.has(dst))
	assert.True(t, engine.has(newChild))

	assert.False(t, ix.Knows(document.ID(src)))
	assert.True(t, ix.Knows(document.ID(dst)))
	assert.True(t, ix.Knows(document.ID(newChild)))
}

func TestClear(t *testing.T) {
	_, engine, ix := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, ix.RunOnce(ctx))
	require.NotEmpty(t, engine.ids())

	require.NoError(t, ix.Clear(ctx))
	assert.Empty(t, engine.ids())
	assert.Empty(t, ix.KnownIDs())
}

func TestDaemonStopsOnCancel(t *testing.T) {
	_, engine, ix := newTestIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ix.Daemon(ctx, nil)
	}()

	// Let the initial reconcile land, then stop the loop.
	require.Eventually(t, func() bool {
		return len(engine.ids()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}

	assert.True(t, engine.prepared)
}

func TestSearchShapes(t *testing.T) {
	root, _, ix := newTestIndexer(t)
	ctx := context.Background()
	require.NoError(t, ix.RunOnce(ctx))

	result, err := ix.Search(ctx, root, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
}
