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

// Package pathfilter decides which filesystem paths are admitted to the index.
package pathfilter

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter admits or rejects paths by root prefix, substring and anchored
// regular-expression exclusions. It performs no I/O and is safe for
// concurrent use.
type Filter struct {
	roots      []string
	substrings []string
	patterns   []*regexp.Regexp
}

// New builds a Filter. Expressions are anchored at the path start and
// validated here so a bad pattern fails at startup, not mid-crawl.
func New(roots, substrings, expressions []string) (*Filter, error) {
	patterns := make([]*regexp.Regexp, 0, len(expressions))
	for _, expr := range expressions {
		anchored := expr
		if !strings.HasPrefix(anchored, "^") {
			anchored = "^(?:" + anchored + ")"
		}
		re, err := regexp.Compile(anchored)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion regular expression %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}

	return &Filter{
		roots:      roots,
		substrings: substrings,
		patterns:   patterns,
	}, nil
}

// ShouldIndex reports whether path is admitted. With checkUnderRoots set the
// path must live under one of the configured roots; change-stream events need
// this because they arrive for the whole filesystem, crawl entries do not.
func (f *Filter) ShouldIndex(path string, checkUnderRoots bool) bool {
	if checkUnderRoots {
		underRoot := false
		for _, root := range f.roots {
			if strings.HasPrefix(path, root) {
				underRoot = true
				break
			}
		}
		if !underRoot {
			return false
		}
	}

	for _, sub := range f.substrings {
		if strings.Contains(path, sub) {
			return false
		}
	}

	for _, re := range f.patterns {
		if re.MatchString(path) {
			return false
		}
	}

	return true
}
