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
	"fmt"
	"strings"

	"github.com/kadirpekel/spotdex/pkg/elastic"
)

// searchSize is the page Search serves to the operator, matching what
// Samba's mdssvc requests. The rename handler uses renameSearchLimit.
const searchSize = 100

// The query_string shapes mirror the queries Samba generates for Spotlight
// searches, always scoped to a share path.

func termQuery(term, scope string) string {
	return fmt.Sprintf(`(%s* OR content:%s*) AND path.real.fulltext:"%s"`,
		term, term, quoteScope(scope))
}

func filenameQuery(filename, scope string) string {
	return fmt.Sprintf(`file.filename: %s* AND path.real.fulltext:"%s"`,
		filename, quoteScope(scope))
}

func scopeQuery(scope string) string {
	return fmt.Sprintf(`path.real.fulltext:"%s"`, quoteScope(scope))
}

func quoteScope(scope string) string {
	return strings.ReplaceAll(scope, `"`, `\"`)
}

// Search runs one of the three query shapes against the engine: a term
// search, a filename search, or — when both are empty — a scope-only listing.
func (ix *Indexer) Search(ctx context.Context, scope, term, filename string) (*elastic.SearchResult, error) {
	var query string
	switch {
	case term != "":
		query = termQuery(term, scope)
	case filename != "":
		query = filenameQuery(filename, scope)
	default:
		query = scopeQuery(scope)
	}

	return ix.engine.SearchQueryString(ctx, query, 0, searchSize)
}

// EnableSlowlog drops every search slowlog threshold to zero so each query
// is logged by the engine.
func (ix *Indexer) EnableSlowlog(ctx context.Context) error {
	return ix.engine.PutSlowlogThresholds(ctx, "0")
}

// DisableSlowlog restores the default slowlog thresholds.
func (ix *Indexer) DisableSlowlog(ctx context.Context) error {
	return ix.engine.PutSlowlogThresholds(ctx, "-1")
}
