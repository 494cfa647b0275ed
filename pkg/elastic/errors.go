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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Sentinel errors mapped from engine responses. Callers match with errors.Is.
var (
	// ErrUnavailable covers transport failures and 5xx responses.
	ErrUnavailable = errors.New("elasticsearch unavailable")

	// ErrBadRequest covers 400 responses, e.g. incompatible mapping changes.
	ErrBadRequest = errors.New("elasticsearch bad request")

	// ErrNotFound covers 404 responses.
	ErrNotFound = errors.New("elasticsearch not found")

	// ErrAlreadyExists covers index creation races.
	ErrAlreadyExists = errors.New("elasticsearch index already exists")
)

// asError maps an esapi response to a sentinel-wrapped error, or nil on 2xx.
// On an error response the body is read into the message; on 2xx it is left
// unread for the caller.
func asError(op string, res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}

	body, _ := io.ReadAll(res.Body)
	detail := strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300] + "..."
	}

	var sentinel error
	switch {
	case res.StatusCode == 400 && strings.Contains(detail, "resource_already_exists_exception"):
		sentinel = ErrAlreadyExists
	case res.StatusCode == 400:
		sentinel = ErrBadRequest
	case res.StatusCode == 404:
		sentinel = ErrNotFound
	case res.StatusCode >= 500:
		sentinel = ErrUnavailable
	default:
		return fmt.Errorf("%s: HTTP %d: %s", op, res.StatusCode, detail)
	}

	return fmt.Errorf("%s: HTTP %d: %s: %w", op, res.StatusCode, detail, sentinel)
}

// transportError wraps a client-side failure (connection refused, timeout).
func transportError(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrUnavailable)
}
