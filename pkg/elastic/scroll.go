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
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const scrollKeepAlive = time.Minute

// ScrollIDs streams every document id in the index to fn in batches of
// batchSize. The server-side cursor is refreshed on each fetch and expires if
// abandoned, so the scan runs to completion in this one call and cannot be
// restarted.
func (c *Client) ScrollIDs(ctx context.Context, batchSize int, fn func(id string)) error {
	defer c.track(time.Now())

	body, err := encodeBody(map[string]any{
		"query":   map[string]any{"match_all": map[string]any{}},
		"_source": false,
		"sort":    []string{"_doc"},
	})
	if err != nil {
		return err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(body),
		c.es.Search.WithSize(batchSize),
		c.es.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return transportError("scroll ids", err)
	}

	scrollID, ids, err := decodeScrollPage(res)
	if err != nil {
		return err
	}

	for len(ids) > 0 {
		for _, id := range ids {
			fn(id)
		}

		res, err := c.es.Scroll(
			c.es.Scroll.WithContext(ctx),
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return transportError("scroll ids", err)
		}
		scrollID, ids, err = decodeScrollPage(res)
		if err != nil {
			return err
		}
	}

	if scrollID != "" {
		res, err := c.es.ClearScroll(
			c.es.ClearScroll.WithContext(ctx),
			c.es.ClearScroll.WithScrollID(scrollID),
		)
		if err == nil {
			res.Body.Close()
		}
	}
	return nil
}

// decodeScrollPage consumes and closes the response body.
func decodeScrollPage(res *esapi.Response) (string, []string, error) {
	defer res.Body.Close()

	if err := asError("scroll ids", res); err != nil {
		return "", nil, err
	}

	var out struct {
		ScrollID string `json:"_scroll_id"`
		Hits     struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", nil, fmt.Errorf("scroll ids: failed to decode response: %w", err)
	}

	ids := make([]string, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return out.ScrollID, ids, nil
}
