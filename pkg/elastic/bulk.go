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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/spotdex/pkg/document"
)

// BulkAction tags a BulkOp.
type BulkAction string

const (
	// BulkIndex writes a document under its id.
	BulkIndex BulkAction = "index"

	// BulkDelete removes the document with the given id.
	BulkDelete BulkAction = "delete"
)

// BulkOp is one item of a heterogeneous bulk request, keyed by document id.
// Doc is nil for deletes.
type BulkOp struct {
	Action BulkAction
	ID     string
	Doc    *document.Document
}

// bulkItemError describes one rejected item of a bulk response.
type bulkItemError struct {
	ID     string
	Status int
	Reason string
}

const bulkItemRetries = 3

// Bulk ships ops in one request. Items rejected with 429 are retried up to
// bulkItemRetries times with a linear backoff; any other per-item failure, or
// a transport failure, fails the whole batch.
func (c *Client) Bulk(ctx context.Context, ops []BulkOp) error {
	if len(ops) == 0 {
		return nil
	}

	pending := ops
	for attempt := 0; ; attempt++ {
		retryable, err := c.bulkOnce(ctx, pending)
		if err != nil {
			return err
		}
		if len(retryable) == 0 {
			return nil
		}
		if attempt >= bulkItemRetries {
			return fmt.Errorf("bulk: %d items still rejected after %d retries: %w",
				len(retryable), bulkItemRetries, ErrUnavailable)
		}

		delay := time.Duration(attempt+1) * time.Second
		slog.Warn("Bulk items rejected, retrying",
			"count", len(retryable),
			"attempt", attempt+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		pending = retryable
	}
}

// bulkOnce performs a single bulk round trip and returns the items the
// engine asked to back off on (HTTP 429).
func (c *Client) bulkOnce(ctx context.Context, ops []BulkOp) ([]BulkOp, error) {
	defer c.track(time.Now())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		meta := map[string]map[string]string{
			string(op.Action): {"_id": op.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("bulk: failed to encode action line: %w", err)
		}
		if op.Action == BulkIndex {
			if err := enc.Encode(op.Doc); err != nil {
				return nil, fmt.Errorf("bulk: failed to encode document %s: %w", op.ID, err)
			}
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
	)
	if err != nil {
		return nil, transportError("bulk", err)
	}
	defer res.Body.Close()

	if err := asError("bulk", res); err != nil {
		return nil, err
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("bulk: failed to decode response: %w", err)
	}
	if !out.Errors {
		return nil, nil
	}

	var retryable []BulkOp
	var failures []bulkItemError
	for i, item := range out.Items {
		for _, status := range item {
			if status.Status < 300 {
				continue
			}
			if status.Status == 429 && i < len(ops) {
				retryable = append(retryable, ops[i])
				continue
			}
			failures = append(failures, bulkItemError{
				ID:     status.ID,
				Status: status.Status,
				Reason: status.Error.Reason,
			})
		}
	}

	if len(failures) > 0 {
		sample := failures
		if len(sample) > 5 {
			sample = sample[:5]
		}
		return nil, fmt.Errorf("bulk: %d items failed, first: %+v", len(failures), sample)
	}
	return retryable, nil
}
