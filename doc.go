// Package spotdex keeps an Elasticsearch index in sync with the file and
// directory paths below a set of share roots, so a Samba server can answer
// macOS Spotlight searches (mdssvc) against it.
//
// Only names are indexed, never contents. The daemon alternates two
// activities: a full reconciling crawl that makes the index equal the
// filesystem's admitted path set, and a live change source — kernel
// filesystem notifications or a tailed Samba full_audit log — that applies
// create/delete/rename events between crawls.
//
// # Quick Start
//
// Install spotdex:
//
//	go install github.com/kadirpekel/spotdex/cmd/spotdex@latest
//
// Create a configuration:
//
//	directories:
//	  - /srv/share
//	exclusions:
//	  partial_paths: [".tmp"]
//	wait_time: 30m
//	samba:
//	  audit_log: /var/log/samba/audit.log
//	elasticsearch:
//	  url: http://localhost:9200
//	  index: files
//
// Run one indexing pass, or the daemon:
//
//	spotdex index --config config.yml
//	spotdex daemon --config config.yml
//
// # Packages
//
//	pkg/config      configuration loading and validation
//	pkg/pathfilter  path admission rules
//	pkg/document    document ids and bodies
//	pkg/elastic     the Elasticsearch adapter and index validator
//	pkg/watcher     the live change sources
//	pkg/indexer     reconciliation, mutations, the daemon loop
package spotdex
