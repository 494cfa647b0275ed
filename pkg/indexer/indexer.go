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

// Package indexer keeps a search index in sync with the filesystem: full
// reconciling crawls, incremental mutations from a live change source, and
// the daemon loop alternating the two.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/spotdex/pkg/config"
	"github.com/kadirpekel/spotdex/pkg/document"
	"github.com/kadirpekel/spotdex/pkg/pathfilter"
	"github.com/kadirpekel/spotdex/pkg/watcher"
)

// Indexer owns the known-id set and drives every write to the engine.
type Indexer struct {
	cfg    *config.Config
	engine Engine
	filter *pathfilter.Filter
	mapper *document.Mapper

	// ctx is the lifetime context used by mutation callbacks, which are
	// dispatched by change sources without one.
	ctx context.Context

	mu    sync.Mutex
	known map[string]struct{}

	fatalMu  sync.Mutex
	fatalErr error
}

// New wires an Indexer from configuration and an engine adapter.
func New(cfg *config.Config, engine Engine) (*Indexer, error) {
	filter, err := pathfilter.New(
		cfg.Directories,
		cfg.Exclusions.PartialPaths,
		cfg.Exclusions.RegularExpressions,
	)
	if err != nil {
		return nil, err
	}

	return &Indexer{
		cfg:    cfg,
		engine: engine,
		filter: filter,
		mapper: document.NewMapper(cfg.StatFields()),
		ctx:    context.Background(),
		known:  make(map[string]struct{}),
	}, nil
}

// KnownIDs returns a snapshot of the known-id set.
func (ix *Indexer) KnownIDs() map[string]struct{} {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make(map[string]struct{}, len(ix.known))
	for id := range ix.known {
		out[id] = struct{}{}
	}
	return out
}

// Knows reports whether id is in the known-id set.
func (ix *Indexer) Knows(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.known[id]
	return ok
}

func (ix *Indexer) setFatal(err error) {
	ix.fatalMu.Lock()
	defer ix.fatalMu.Unlock()
	if ix.fatalErr == nil {
		ix.fatalErr = err
	}
}

// Err returns the first fatal engine error hit by a mutation callback.
func (ix *Indexer) Err() error {
	ix.fatalMu.Lock()
	defer ix.fatalMu.Unlock()
	return ix.fatalErr
}

// PrepareAndLoad prepares the index and primes the known-id set from the
// engine via a full id scan.
func (ix *Indexer) PrepareAndLoad(ctx context.Context) error {
	if err := ix.engine.PrepareIndex(ctx); err != nil {
		return err
	}

	known := make(map[string]struct{})
	err := ix.engine.ScrollIDs(ctx, ix.cfg.Elasticsearch.BulkSize, func(id string) {
		known[id] = struct{}{}
	})
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.known = known
	ix.mu.Unlock()

	slog.Info("Loaded document ids from index", "index", ix.engine.Index(), "count", len(known))
	return nil
}

// RunOnce is the one-shot `index` verb: prepare, load ids, reconcile.
func (ix *Indexer) RunOnce(ctx context.Context) error {
	if err := ix.PrepareAndLoad(ctx); err != nil {
		return err
	}
	return ix.Reconcile(ctx)
}

// SelectSource picks the change source for daemon mode: kernel notifications
// when use_fanotify is set, otherwise the audit-log tail when configured,
// otherwise nil (sleep-only).
func (ix *Indexer) SelectSource() watcher.Source {
	if ix.cfg.UseFanotify {
		return watcher.NewNotifyWatcher(ix.cfg.Directories, ix)
	}
	if ix.cfg.Samba.AuditLog != "" {
		return watcher.NewAuditLogWatcher(
			ix.cfg.Samba.AuditLog,
			time.Duration(ix.cfg.Samba.MonitorSleepTime)*time.Second,
			ix,
		)
	}
	return nil
}

// Daemon runs forever: prepare, load, reconcile, then alternate a watch
// window (or sleep) with another reconcile. It returns nil when ctx is
// cancelled and the first fatal error otherwise.
func (ix *Indexer) Daemon(ctx context.Context, source watcher.Source) error {
	ix.ctx = ctx

	active := source != nil && source.Start()
	if !active {
		slog.Info("No change source available, sleeping between indexing runs",
			"wait_time", ix.cfg.WaitTime)
	}

	if err := ix.PrepareAndLoad(ctx); err != nil {
		return err
	}
	if err := ix.Reconcile(ctx); err != nil {
		return err
	}

	wait := ix.cfg.WaitDuration()
	for {
		if ctx.Err() != nil {
			return nil
		}

		if active {
			changes := source.Watch(wait)
			slog.Info("Watch window finished", "changes", changes)
			if err := ix.Err(); err != nil {
				return err
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		if err := ix.Reconcile(ctx); err != nil {
			return err
		}
	}
}

// Clear deletes every document from the index.
func (ix *Indexer) Clear(ctx context.Context) error {
	if err := ix.engine.Refresh(ctx); err != nil {
		return err
	}

	deleted, err := ix.engine.DeleteByQuery(ctx, map[string]any{
		"match_all": map[string]any{},
	})
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.known = make(map[string]struct{})
	ix.mu.Unlock()

	slog.Info("Deleted all documents from index", "index", ix.engine.Index(), "deleted", deleted)
	return nil
}
