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
	"encoding/json"
	"fmt"
	"os"
)

// IndexSpec is the expected index definition: settings plus mappings.
type IndexSpec struct {
	Settings map[string]any
	Mappings map[string]any
}

// The default analyzer tokenizes alphanumeric runs and folds case and
// accents, so Spotlight queries match regardless of spelling quirks. The
// mapped fields are the ones Samba's mdssvc expects.
const (
	defaultTokenizerName = "alphanumeric"

	defaultSettingsJSON = `{
  "analysis": {
    "tokenizer": {
      "alphanumeric": {
        "type": "simple_pattern",
        "pattern": "[a-zA-Z0-9]+"
      }
    },
    "analyzer": {
      "default": {
        "tokenizer": "alphanumeric",
        "filter": ["lowercase", "asciifolding"]
      }
    }
  }
}`

	defaultMappingJSON = `{
  "mappings": {
    "properties": {
      "path": {
        "properties": {
          "real": {
            "type": "keyword",
            "store": true,
            "fields": {
              "tree": {"type": "text", "fielddata": true},
              "fulltext": {"type": "text"}
            }
          }
        }
      },
      "file": {
        "properties": {
          "filename": {
            "type": "keyword",
            "store": true,
            "fields": {
              "tree": {"type": "text", "fielddata": true},
              "fulltext": {"type": "text"}
            }
          },
          "filesize": {"type": "long"},
          "last_modified": {"type": "date", "format": "epoch_second"}
        }
      }
    }
  }
}`
)

// LoadIndexSpec builds the expected index definition. Either file path may be
// empty, in which case the embedded default applies. A mapping file may wrap
// its properties in a top-level "mappings" key or not; both shapes are
// accepted.
func LoadIndexSpec(mappingFile, settingsFile string) (IndexSpec, error) {
	spec := IndexSpec{}

	mappingJSON := []byte(defaultMappingJSON)
	if mappingFile != "" {
		data, err := os.ReadFile(mappingFile)
		if err != nil {
			return spec, fmt.Errorf("failed to read index mapping %s: %w", mappingFile, err)
		}
		mappingJSON = data
	}

	var mappingDoc map[string]any
	if err := json.Unmarshal(mappingJSON, &mappingDoc); err != nil {
		return spec, fmt.Errorf("failed to parse index mapping: %w", err)
	}
	if inner, ok := mappingDoc["mappings"].(map[string]any); ok {
		spec.Mappings = inner
	} else {
		spec.Mappings = mappingDoc
	}

	settingsJSON := []byte(defaultSettingsJSON)
	if settingsFile != "" {
		data, err := os.ReadFile(settingsFile)
		if err != nil {
			return spec, fmt.Errorf("failed to read index settings %s: %w", settingsFile, err)
		}
		settingsJSON = data
	}
	if err := json.Unmarshal(settingsJSON, &spec.Settings); err != nil {
		return spec, fmt.Errorf("failed to parse index settings: %w", err)
	}

	return spec, nil
}
