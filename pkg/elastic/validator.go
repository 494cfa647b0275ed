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

package elastic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ValidateIndexSpec compares the expected definition against the live one.
// It returns a non-empty reason when the index must be dropped and recreated:
// wrong default-analyzer tokenizer, a filter chain missing lowercase or
// asciifolding, or any expected mapping leaf missing or mismatched. Extra
// live keys are tolerated.
func ValidateIndexSpec(spec IndexSpec, index string, liveSettings, liveMappings map[string]any) string {
	expectedAnalyzer, _ := dig(spec.Settings, "analysis", "analyzer", "default").(map[string]any)
	liveAnalyzer, _ := dig(liveSettings, index, "settings", "index", "analysis", "analyzer", "default").(map[string]any)

	if expectedAnalyzer != nil {
		wantTokenizer := fmt.Sprint(expectedAnalyzer["tokenizer"])
		gotTokenizer, ok := liveAnalyzer["tokenizer"]
		if !ok {
			return "default analyzer has no tokenizer"
		}
		if fmt.Sprint(gotTokenizer) != wantTokenizer {
			return fmt.Sprintf("default analyzer tokenizer is %q, expected %q", gotTokenizer, wantTokenizer)
		}

		filters, _ := liveAnalyzer["filter"].([]any)
		for _, required := range []string{"lowercase", "asciifolding"} {
			if !containsScalar(filters, required) {
				return fmt.Sprintf("default analyzer filter chain misses %q", required)
			}
		}
	}

	liveMapping, _ := dig(liveMappings, index, "mappings").(map[string]any)
	if ok, path := subsetEqual(spec.Mappings, liveMapping); !ok {
		return fmt.Sprintf("mapping mismatch at %s", path)
	}

	return ""
}

// PrepareIndex brings the index in line with the expected definition:
// create it when absent; recreate it when the validator demands it; otherwise
// update the mapping in place, falling back to recreate when the engine
// rejects the change as incompatible.
func (c *Client) PrepareIndex(ctx context.Context) error {
	exists, err := c.IndexExists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		slog.Info("Creating index", "index", c.index)
		if err := c.CreateIndex(ctx); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return err
		}
		return nil
	}

	liveSettings, err := c.GetSettings(ctx)
	if err != nil {
		return err
	}
	liveMappings, err := c.GetMapping(ctx)
	if err != nil {
		return err
	}

	if reason := ValidateIndexSpec(c.spec, c.index, liveSettings, liveMappings); reason != "" {
		slog.Info("Recreating index", "index", c.index, "reason", reason)
		return c.recreate(ctx)
	}

	slog.Info("Updating mapping of index", "index", c.index)
	err = c.PutMapping(ctx)
	if errors.Is(err, ErrBadRequest) {
		slog.Warn("Mapping update rejected, recreating index", "index", c.index, "error", err)
		return c.recreate(ctx)
	}
	return err
}

func (c *Client) recreate(ctx context.Context) error {
	if err := c.DeleteIndex(ctx); err != nil {
		return err
	}
	return c.CreateIndex(ctx)
}

// dig walks nested maps along keys, returning nil when any step is missing.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, key := range keys {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = node[key]
	}
	return cur
}

func containsScalar(list []any, want string) bool {
	for _, v := range list {
		if fmt.Sprint(v) == want {
			return true
		}
	}
	return false
}

// subsetEqual checks that every leaf of expected is present and equal in
// live. Scalars compare by their printed form because the settings API
// stringifies booleans and numbers. The returned path names the first
// mismatch.
func subsetEqual(expected, live any) (bool, string) {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := live.(map[string]any)
		if !ok {
			return false, "(root)"
		}
		for key, wantVal := range want {
			gotVal, ok := got[key]
			if !ok {
				return false, key
			}
			if ok, path := subsetEqual(wantVal, gotVal); !ok {
				if path == "(root)" {
					return false, key
				}
				return false, key + "." + path
			}
		}
		return true, ""
	case []any:
		got, ok := live.([]any)
		if !ok {
			return false, "(root)"
		}
		for _, wantVal := range want {
			if !containsScalar(got, fmt.Sprint(wantVal)) {
				return false, fmt.Sprintf("[%v]", wantVal)
			}
		}
		return true, ""
	default:
		if fmt.Sprint(expected) != fmt.Sprint(live) {
			return false, "(root)"
		}
		return true, ""
	}
}
