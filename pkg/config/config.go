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

// Package config loads and validates the spotdex YAML configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// Directories are the share roots whose contents are mirrored into the index.
	Directories []string `yaml:"directories"`

	Exclusions    ExclusionsConfig    `yaml:"exclusions"`
	Samba         SambaConfig         `yaml:"samba"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`

	// WaitTime is the pause between indexing runs, "<int><s|m|h|d>".
	WaitTime string `yaml:"wait_time"`

	// UseFanotify selects the kernel-notification change source instead of
	// tailing the Samba audit log.
	UseFanotify bool `yaml:"use_fanotify"`

	// AddAdditionalFields enriches documents with file size and timestamps.
	// IndexFileDates is the historical name for the same switch.
	AddAdditionalFields bool `yaml:"add_additional_fields"`
	IndexFileDates      bool `yaml:"index_file_dates"`

	// DumpDocumentsOnError persists a failed bulk batch to /tmp for post-mortem.
	DumpDocumentsOnError bool `yaml:"dump_documents_on_error"`

	waitDuration time.Duration
}

// ExclusionsConfig rejects paths from indexing.
type ExclusionsConfig struct {
	// PartialPaths are substrings; any match rejects the path.
	PartialPaths []string `yaml:"partial_paths"`

	// RegularExpressions are anchored patterns matched from the path start.
	RegularExpressions []string `yaml:"regular_expressions"`
}

// SambaConfig points at the Samba full_audit log.
type SambaConfig struct {
	// AuditLog is the path of the audit log; empty disables the tail watcher.
	AuditLog string `yaml:"audit_log"`

	// MonitorSleepTime is the pause in seconds between read/rotation probes.
	MonitorSleepTime int `yaml:"monitor_sleep_time"`
}

// ElasticsearchConfig configures the engine connection and index.
type ElasticsearchConfig struct {
	URL      string `yaml:"url"`
	Index    string `yaml:"index"`
	BulkSize int    `yaml:"bulk_size"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// VerifyCerts and SSLShowWarn default to true when unset.
	VerifyCerts *bool  `yaml:"verify_certs"`
	SSLShowWarn *bool  `yaml:"ssl_show_warn"`
	CACerts     string `yaml:"ca_certs"`

	// IndexMapping / IndexSettings are JSON files overriding the embedded
	// index definition.
	IndexMapping  string `yaml:"index_mapping"`
	IndexSettings string `yaml:"index_settings"`

	// LibraryVersion selects wire compatibility, 7 or 8.
	LibraryVersion int `yaml:"library_version"`
}

// LoggingConfig configures the slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	// Listen is the address for /metrics, e.g. ":9108"; empty disables it.
	Listen string `yaml:"listen"`
}

// BoolPtr returns a pointer to b, for optional boolean settings.
func BoolPtr(b bool) *bool {
	return &b
}

var waitTimeRe = regexp.MustCompile(`^(\d+)(\w)$`)

// ParseWaitTime parses a "<int><s|m|h|d>" interval.
func ParseWaitTime(value string) (time.Duration, error) {
	m := waitTimeRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("unknown wait_time %q", value)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("unknown wait_time %q: %w", value, err)
	}

	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit in wait_time %q, expected s, m, h or d", m[2])
	}
}

// SetDefaults applies defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.WaitTime == "" {
		c.WaitTime = "30m"
	}
	if c.Samba.MonitorSleepTime <= 0 {
		c.Samba.MonitorSleepTime = 1
	}
	if c.Elasticsearch.URL == "" {
		c.Elasticsearch.URL = "http://localhost:9200"
	}
	if c.Elasticsearch.Index == "" {
		c.Elasticsearch.Index = "files"
	}
	if c.Elasticsearch.BulkSize <= 0 {
		c.Elasticsearch.BulkSize = 10000
	}
	if c.Elasticsearch.LibraryVersion == 0 {
		c.Elasticsearch.LibraryVersion = 8
	}
	if c.Elasticsearch.VerifyCerts == nil {
		c.Elasticsearch.VerifyCerts = BoolPtr(true)
	}
	if c.Elasticsearch.SSLShowWarn == nil {
		c.Elasticsearch.SSLShowWarn = BoolPtr(true)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration; a non-nil error is fatal at startup.
func (c *Config) Validate() error {
	d, err := ParseWaitTime(c.WaitTime)
	if err != nil {
		return err
	}
	c.waitDuration = d

	if len(c.Directories) == 0 {
		return fmt.Errorf("no directories configured")
	}

	if v := c.Elasticsearch.LibraryVersion; v != 7 && v != 8 {
		return fmt.Errorf("unsupported elasticsearch.library_version %d, expected 7 or 8", v)
	}

	for _, expr := range c.Exclusions.RegularExpressions {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("invalid exclusion regular expression %q: %w", expr, err)
		}
	}

	return nil
}

// WaitDuration returns the parsed wait_time. Valid after Validate.
func (c *Config) WaitDuration() time.Duration {
	return c.waitDuration
}

// StatFields reports whether documents carry size/date enrichment.
func (c *Config) StatFields() bool {
	return c.AddAdditionalFields || c.IndexFileDates
}

// Load reads, parses, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}
