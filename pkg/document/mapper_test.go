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

package document_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/spotdex/pkg/document"
)

func TestIDIsSHA256OfPathBytes(t *testing.T) {
	path := "/data/a.txt"
	sum := sha256.Sum256([]byte(path))
	assert.Equal(t, hex.EncodeToString(sum[:]), document.ID(path))

	// Precomputed on another host; two mappers must agree.
	assert.Equal(t,
		"3e6af32236747ec0d6b68775746e11834caefe1a48b387dde6fd494042c17cf3",
		document.ID("/data/a.txt"))
}

func TestIDIsDeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, document.ID("/a"), document.ID("/a"))
	assert.NotEqual(t, document.ID("/a"), document.ID("/b"))
}

func TestIDHandlesArbitraryBytes(t *testing.T) {
	// Paths are byte strings; invalid UTF-8 must round-trip into the digest.
	weird := "/data/\x80\xfe\xff"
	sum := sha256.Sum256([]byte(weird))
	assert.Equal(t, hex.EncodeToString(sum[:]), document.ID(weird))
}

func TestMapWithoutStatFields(t *testing.T) {
	m := document.NewMapper(false)

	doc, err := m.Map("/nonexistent/anywhere", "anywhere")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "/nonexistent/anywhere", doc.Path.Real)
	assert.Equal(t, "anywhere", doc.File.Filename)
	assert.Nil(t, doc.File.Filesize)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":{"real":"/nonexistent/anywhere"},"file":{"filename":"anywhere"}}`, string(data))
}

func TestMapWithStatFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	m := document.NewMapper(true)
	doc, err := m.Map(path, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.NotNil(t, doc.File.Filesize)
	assert.Equal(t, int64(5), *doc.File.Filesize)
	require.NotNil(t, doc.File.LastModified)
	assert.Greater(t, *doc.File.LastModified, int64(0))
}

func TestMapVanishedFileIsSkipNotError(t *testing.T) {
	m := document.NewMapper(true)

	doc, err := m.Map(filepath.Join(t.TempDir(), "gone.txt"), "gone.txt")
	require.NoError(t, err)
	assert.Nil(t, doc)
}
