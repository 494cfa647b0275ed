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

// Command spotdex keeps an Elasticsearch index in sync with the file and
// directory paths below the configured share roots, ready for Spotlight
// search through Samba.
//
// Usage:
//
//	spotdex index --config config.yml
//	spotdex daemon --config config.yml
//	spotdex search --path /srv/share --term report
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/spotdex"
	"github.com/kadirpekel/spotdex/pkg/config"
	"github.com/kadirpekel/spotdex/pkg/elastic"
	"github.com/kadirpekel/spotdex/pkg/indexer"
)

// CLI defines the command-line interface.
type CLI struct {
	Version        VersionCmd        `cmd:"" help:"Show version information."`
	Index          IndexCmd          `cmd:"" help:"Prepare the index and run one indexing pass."`
	Daemon         DaemonCmd         `cmd:"" help:"Run forever, alternating change watching and indexing passes."`
	Clear          ClearCmd          `cmd:"" help:"Delete all documents from the index."`
	Search         SearchCmd         `cmd:"" help:"Query the index the way Samba does."`
	EnableSlowlog  EnableSlowlogCmd  `cmd:"" name:"enable-slowlog" help:"Log every search query in the engine's slowlog."`
	DisableSlowlog DisableSlowlogCmd `cmd:"" name:"disable-slowlog" help:"Restore the engine's default slowlog thresholds."`

	Config    string `short:"c" help:"Path to config file." default:"/etc/spotdex/config.yml" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)."`
}

// setup loads configuration, initializes logging and wires the indexer.
func setup(cli *CLI) (*config.Config, *indexer.Indexer, func(), error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup, err := initLogger(cli, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := elastic.NewClient(cfg.Elasticsearch)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	ix, err := indexer.New(cfg, client)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	return cfg, ix, cleanup, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM. A second
// signal terminates immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down")
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	return ctx, cancel
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(spotdex.GetVersion())
	return nil
}

// IndexCmd runs a single reconciliation pass.
type IndexCmd struct{}

func (c *IndexCmd) Run(cli *CLI) error {
	_, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	return ix.RunOnce(ctx)
}

// DaemonCmd runs the reconcile/watch loop forever.
type DaemonCmd struct{}

func (c *DaemonCmd) Run(cli *CLI) error {
	cfg, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	slog.Info("Starting indexing in daemon mode", "wait_time", cfg.WaitTime)

	indexer.ServeMetrics(cfg.Metrics.Listen)

	return ix.Daemon(ctx, ix.SelectSource())
}

// ClearCmd wipes the index.
type ClearCmd struct{}

func (c *ClearCmd) Run(cli *CLI) error {
	_, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	return ix.Clear(ctx)
}

// SearchCmd runs a one-shot query and prints the hits.
type SearchCmd struct {
	Path     string `required:"" help:"Share path to search under (the samba share's path)."`
	Term     string `help:"Term to search for across all attributes."`
	Filename string `help:"Filename to search for."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	if c.Term != "" && c.Filename != "" {
		return fmt.Errorf("--term and --filename are mutually exclusive")
	}

	_, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := ix.Search(ctx, c.Path, c.Term, c.Filename)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d elasticsearch documents:\n", result.Total)
	for _, hit := range result.Hits {
		fmt.Printf("- %s: %s\n", hit.Source.File.Filename, string(hit.Raw))
	}
	return nil
}

// EnableSlowlogCmd turns on slowlog capture for every query.
type EnableSlowlogCmd struct{}

func (c *EnableSlowlogCmd) Run(cli *CLI) error {
	_, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	if err := ix.EnableSlowlog(ctx); err != nil {
		return err
	}
	slog.Info("Slowlog enabled for all queries; do a Spotlight search and check the elasticsearch logs")
	return nil
}

// DisableSlowlogCmd restores the default slowlog behavior.
type DisableSlowlogCmd struct{}

func (c *DisableSlowlogCmd) Run(cli *CLI) error {
	_, ix, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	if err := ix.DisableSlowlog(ctx); err != nil {
		return err
	}
	slog.Info("Slowlog thresholds restored to defaults")
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("spotdex"),
		kong.Description("Indexes file and directory names into Elasticsearch for Spotlight search via Samba."),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
