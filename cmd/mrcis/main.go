// Copyright 2025 KrakLabs
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
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the mrcis CLI for indexing repositories and
// querying the multi-repository code-intelligence service.
//
// Usage:
//
//	mrcis init                      Create mrcis.toml and the local data store
//	mrcis start                     Run the indexing service (writer or read-only)
//	mrcis index                     One-shot index: scan, drain the queue, exit
//	mrcis status [--json]           Show per-repository index status
//	mrcis query search <text>       Semantic search over indexed entities
//	mrcis reindex <repository>      Re-scan one repository
//	mrcis --mcp                     Serve tool calls as JSON-RPC over stdio
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags carries the flags every subcommand consults.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	NoColor    bool
	Quiet      bool
	Debug      bool
}

func globalFlags(c *cli.Context) GlobalFlags {
	return GlobalFlags{
		ConfigPath: c.String("config"),
		JSON:       c.Bool("json"),
		NoColor:    c.Bool("no-color"),
		Quiet:      c.Bool("quiet") || c.Bool("json"),
		Debug:      c.Bool("debug"),
	}
}

func main() {
	app := &cli.App{
		Name:    "mrcis",
		Usage:   "Multi-repository code intelligence: index, watch, and query source repositories",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to mrcis.toml",
				Value:   "mrcis.toml",
			},
			&cli.BoolFlag{
				Name:  "mcp",
				Usage: "Serve tool calls as JSON-RPC over stdio",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress progress output",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			projectsCommand(),
			startCommand(),
			stopCommand(),
			indexCommand(),
			statusCommand(),
			queryCommand(),
			reindexCommand(),
			resetCommand(),
			installHookCommand(),
		},
		Before: func(c *cli.Context) error {
			ui.InitColors(c.Bool("no-color"))
			level := slog.LevelInfo
			if c.Bool("debug") {
				level = slog.LevelDebug
			}
			if c.Bool("quiet") || c.Bool("json") || c.Bool("mcp") {
				level = slog.LevelError
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Action: func(c *cli.Context) error {
			if c.Bool("mcp") {
				return runMCP(c)
			}
			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
