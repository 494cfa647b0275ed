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

// Package elastic is the typed adapter over the Elasticsearch HTTP API:
// index lifecycle, bulk writes, cursored id scans, delete-by-query,
// single-document writes and settings administration.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/kadirpekel/spotdex/pkg/config"
	"github.com/kadirpekel/spotdex/pkg/document"
)

// Client wraps the low-level Elasticsearch client for a single index.
//
// Every request, bulk writes included, goes through the transport's bounded
// retry (up to maxTransportRetries on the RetryOnStatus codes); the transport
// does not tell idempotent from non-idempotent requests. Bulk additionally
// re-sends the items the engine rejected with 429.
type Client struct {
	es    *elasticsearch.Client
	index string
	spec  IndexSpec

	// engineNanos accumulates time spent waiting on the engine.
	engineNanos atomic.Int64
}

const maxTransportRetries = 10

// NewClient builds a Client from configuration. Basic auth applies when a
// user is configured; TLS verification and a custom CA bundle are honored.
func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	spec, err := LoadIndexSpec(cfg.IndexMapping, cfg.IndexSettings)
	if err != nil {
		return nil, err
	}

	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    maxTransportRetries,
		RetryOnStatus: []int{429, 502, 503, 504},
	}

	if cfg.CACerts != "" {
		pem, err := os.ReadFile(cfg.CACerts)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", cfg.CACerts, err)
		}
		esCfg.CACert = pem
	}

	verifyCerts := cfg.VerifyCerts == nil || *cfg.VerifyCerts
	sslShowWarn := cfg.SSLShowWarn == nil || *cfg.SSLShowWarn
	if !verifyCerts {
		if sslShowWarn {
			slog.Warn("TLS certificate verification disabled", "url", cfg.URL)
		}
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	if cfg.LibraryVersion == 7 {
		// Talk the v7 wire dialect to 7.x clusters.
		compat := "application/vnd.elasticsearch+json; compatible-with=7"
		esCfg.Header = http.Header{
			"Accept":       []string{compat},
			"Content-Type": []string{compat},
		}
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client for %s: %w", cfg.URL, err)
	}

	return &Client{es: es, index: cfg.Index, spec: spec}, nil
}

// Index returns the index name this client operates on.
func (c *Client) Index() string {
	return c.index
}

// EngineTime returns the cumulative time spent on engine calls.
func (c *Client) EngineTime() time.Duration {
	return time.Duration(c.engineNanos.Load())
}

// ResetEngineTime zeroes the engine-time accumulator.
func (c *Client) ResetEngineTime() {
	c.engineNanos.Store(0)
}

func (c *Client) track(start time.Time) {
	c.engineNanos.Add(int64(time.Since(start)))
}

// IndexExists reports whether the index exists.
func (c *Client) IndexExists(ctx context.Context) (bool, error) {
	defer c.track(time.Now())

	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportError("index exists", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, asError("index exists", res)
	}
}

// GetSettings fetches the live index settings keyed by index name.
func (c *Client) GetSettings(ctx context.Context) (map[string]any, error) {
	defer c.track(time.Now())

	res, err := c.es.Indices.GetSettings(
		c.es.Indices.GetSettings.WithContext(ctx),
		c.es.Indices.GetSettings.WithIndex(c.index),
	)
	if err != nil {
		return nil, transportError("get settings", err)
	}
	defer res.Body.Close()

	if err := asError("get settings", res); err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("get settings: failed to decode response: %w", err)
	}
	return out, nil
}

// GetMapping fetches the live index mapping keyed by index name.
func (c *Client) GetMapping(ctx context.Context) (map[string]any, error) {
	defer c.track(time.Now())

	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(c.index),
	)
	if err != nil {
		return nil, transportError("get mapping", err)
	}
	defer res.Body.Close()

	if err := asError("get mapping", res); err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("get mapping: failed to decode response: %w", err)
	}
	return out, nil
}

// CreateIndex creates the index with the configured settings and mappings.
func (c *Client) CreateIndex(ctx context.Context) error {
	defer c.track(time.Now())

	body, err := encodeBody(map[string]any{
		"settings": c.spec.Settings,
		"mappings": c.spec.Mappings,
	})
	if err != nil {
		return err
	}

	res, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(body),
	)
	if err != nil {
		return transportError("create index", err)
	}
	defer res.Body.Close()

	return asError("create index", res)
}

// PutMapping updates the index mapping in place. Incompatible changes come
// back as ErrBadRequest.
func (c *Client) PutMapping(ctx context.Context) error {
	defer c.track(time.Now())

	properties := c.spec.Mappings["properties"]
	body, err := encodeBody(map[string]any{"properties": properties})
	if err != nil {
		return err
	}

	res, err := c.es.Indices.PutMapping(
		[]string{c.index},
		body,
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return transportError("put mapping", err)
	}
	defer res.Body.Close()

	return asError("put mapping", res)
}

// DeleteIndex drops the index.
func (c *Client) DeleteIndex(ctx context.Context) error {
	defer c.track(time.Now())

	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return transportError("delete index", err)
	}
	defer res.Body.Close()

	return asError("delete index", res)
}

// Refresh makes recent writes visible to queries.
func (c *Client) Refresh(ctx context.Context) error {
	defer c.track(time.Now())

	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return transportError("refresh", err)
	}
	defer res.Body.Close()

	return asError("refresh", res)
}

// DeleteByQuery removes all documents matching query and returns the count.
func (c *Client) DeleteByQuery(ctx context.Context, query map[string]any) (int, error) {
	defer c.track(time.Now())

	body, err := encodeBody(map[string]any{"query": query})
	if err != nil {
		return 0, err
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		body,
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, transportError("delete by query", err)
	}
	defer res.Body.Close()

	if err := asError("delete by query", res); err != nil {
		return 0, err
	}

	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("delete by query: failed to decode response: %w", err)
	}
	return out.Deleted, nil
}

// IndexDocument writes a single document under id.
func (c *Client) IndexDocument(ctx context.Context, id string, doc *document.Document) error {
	defer c.track(time.Now())

	body, err := encodeBody(doc)
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		c.index,
		body,
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return transportError("index document", err)
	}
	defer res.Body.Close()

	return asError("index document", res)
}

// DeleteDocument removes a single document. A missing id is success.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	defer c.track(time.Now())

	res, err := c.es.Delete(c.index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return transportError("delete document", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	return asError("delete document", res)
}

// PutSlowlogThresholds sets every search slowlog threshold (query and fetch,
// all severities) to value: "0" logs everything, "-1" restores the defaults.
func (c *Client) PutSlowlogThresholds(ctx context.Context, value string) error {
	defer c.track(time.Now())

	levels := map[string]any{
		"warn":  value,
		"info":  value,
		"debug": value,
		"trace": value,
	}
	body, err := encodeBody(map[string]any{
		"index": map[string]any{
			"search": map[string]any{
				"slowlog": map[string]any{
					"threshold": map[string]any{
						"query": levels,
						"fetch": levels,
					},
				},
			},
		},
	})
	if err != nil {
		return err
	}

	res, err := c.es.Indices.PutSettings(
		body,
		c.es.Indices.PutSettings.WithContext(ctx),
		c.es.Indices.PutSettings.WithIndex(c.index),
	)
	if err != nil {
		return transportError("put slowlog thresholds", err)
	}
	defer res.Body.Close()

	return asError("put slowlog thresholds", res)
}

// Hit is one search result.
type Hit struct {
	ID     string
	Source document.Document
	Raw    json.RawMessage
}

// SearchResult carries the total hit count and the returned page.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// SearchQueryString runs a query_string query and returns one page of hits.
func (c *Client) SearchQueryString(ctx context.Context, query string, from, size int) (*SearchResult, error) {
	defer c.track(time.Now())

	body, err := encodeBody(map[string]any{
		"query": map[string]any{
			"query_string": map[string]any{"query": query},
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(body),
		c.es.Search.WithFrom(from),
		c.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, transportError("search", err)
	}
	defer res.Body.Close()

	if err := asError("search", res); err != nil {
		return nil, err
	}

	var out struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []json.RawMessage `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: failed to decode response: %w", err)
	}

	result := &SearchResult{Total: out.Hits.Total.Value}
	for _, raw := range out.Hits.Hits {
		var hit struct {
			ID     string            `json:"_id"`
			Source document.Document `json:"_source"`
		}
		if err := json.Unmarshal(raw, &hit); err != nil {
			return nil, fmt.Errorf("search: failed to decode hit: %w", err)
		}
		result.Hits = append(result.Hits, Hit{ID: hit.ID, Source: hit.Source, Raw: raw})
	}
	return result, nil
}

func encodeBody(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}
