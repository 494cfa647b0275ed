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
	"time"

	"github.com/kadirpekel/spotdex/pkg/document"
	"github.com/kadirpekel/spotdex/pkg/elastic"
)

// Engine is the search-engine surface the indexer depends on. The engine is
// the ground truth for the document set; the indexer only keeps an advisory
// in-memory id set on top of it.
type Engine interface {
	// PrepareIndex validates the live index definition, updating or
	// recreating the index as needed, and creates it when absent.
	PrepareIndex(ctx context.Context) error

	// Bulk applies a heterogeneous batch of index/delete operations.
	Bulk(ctx context.Context, ops []elastic.BulkOp) error

	// DeleteByQuery removes matching documents and returns the count.
	DeleteByQuery(ctx context.Context, query map[string]any) (int, error)

	// IndexDocument writes one document; DeleteDocument removes one,
	// treating a missing id as success.
	IndexDocument(ctx context.Context, id string, doc *document.Document) error
	DeleteDocument(ctx context.Context, id string) error

	// ScrollIDs streams every stored document id exactly once.
	ScrollIDs(ctx context.Context, batchSize int, fn func(id string)) error

	// Refresh makes recent writes visible to queries.
	Refresh(ctx context.Context) error

	// SearchQueryString runs a query_string query and returns one page.
	SearchQueryString(ctx context.Context, query string, from, size int) (*elastic.SearchResult, error)

	// PutSlowlogThresholds sets all search slowlog thresholds to value.
	PutSlowlogThresholds(ctx context.Context, value string) error

	// EngineTime reports cumulative time spent on engine calls since the
	// last ResetEngineTime.
	EngineTime() time.Duration
	ResetEngineTime()

	// Index names the index operated on, for logging.
	Index() string
}
