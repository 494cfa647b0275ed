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

// Package document derives engine documents and their ids from paths.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
)

// Document is the engine document body for one file or directory.
type Document struct {
	Path PathFields `json:"path"`
	File FileFields `json:"file"`
}

// PathFields holds the exact-keyword path field.
type PathFields struct {
	Real string `json:"real"`
}

// FileFields holds the final path component and optional stat enrichment.
type FileFields struct {
	Filename     string `json:"filename"`
	Filesize     *int64 `json:"filesize,omitempty"`
	LastModified *int64 `json:"last_modified,omitempty"`
}

// ID maps a path to its document id: hex SHA-256 over the raw path bytes.
// Go strings carry arbitrary bytes, so paths that are not valid Unicode
// round-trip unchanged into the digest.
func ID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Mapper builds Documents. With statFields set it stats each path to attach
// file size and modification time.
type Mapper struct {
	statFields bool
}

// NewMapper creates a Mapper.
func NewMapper(statFields bool) *Mapper {
	return &Mapper{statFields: statFields}
}

// Map returns the document for (path, filename). A (nil, nil) result means
// the file vanished between discovery and stat; callers must treat it as a
// skip, not a failure.
func (m *Mapper) Map(path, filename string) (*Document, error) {
	doc := &Document{
		Path: PathFields{Real: path},
		File: FileFields{Filename: filename},
	}

	if !m.statFields {
		return doc, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	size := info.Size()
	mtime := info.ModTime().Unix()
	doc.File.Filesize = &size
	doc.File.LastModified = &mtime

	return doc, nil
}
