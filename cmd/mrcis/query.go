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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/contract"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/storage"
	"github.com/mrcis/mrcis/pkg/tools"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Query the index: semantic search, symbol lookup, references, raw Datalog",
		Subcommands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Semantic search over indexed entities",
				ArgsUsage: "<query text>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max results (1-100)", Value: 10},
					&cli.StringFlag{Name: "repository", Aliases: []string{"r"}, Usage: "Limit to one repository by name"},
					&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Limit to one language"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Limit to one entity type (function, class, method, ...)"},
				},
				Action: runQuerySearch,
			},
			{
				Name:      "symbol",
				Usage:     "Look up one symbol by qualified name (suffix fallback)",
				ArgsUsage: "<qualified name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "source", Usage: "Include the symbol's source text"},
				},
				Action: runQuerySymbol,
			},
			{
				Name:      "refs",
				Usage:     "List references to a symbol by exact qualified name",
				ArgsUsage: "<qualified name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "outgoing", Usage: "Also list edges going out of the symbol"},
				},
				Action: runQueryRefs,
			},
			{
				Name:      "usages",
				Usage:     "Find usages of a simple or qualified symbol name",
				ArgsUsage: "<symbol>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "repository", Aliases: []string{"r"}, Usage: "Limit to one repository by name"},
					&cli.BoolFlag{Name: "outgoing", Usage: "Also list edges going out of the symbol"},
				},
				Action: runQueryUsages,
			},
			{
				Name:      "raw",
				Usage:     "Execute a raw CozoScript query against the data store",
				ArgsUsage: "<cozoscript>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "Query timeout", Value: 30 * time.Second},
					&cli.IntFlag{Name: "limit", Usage: "Add :limit to the query (0 = no limit)"},
				},
				Action: runQueryRaw,
			},
		},
	}
}

func runQuerySearch(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis query search <query text>")
	}
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	backend, st, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := tools.SearchCode(ctx, st, newEmbedder(cfg), tools.SearchCodeArgs{
		Query:      strings.Join(c.Args().Slice(), " "),
		Limit:      c.Int("limit"),
		Repository: c.String("repository"),
		Language:   c.String("language"),
		EntityType: c.String("type"),
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("search failed", err.Error(), "check that the embedding endpoint in mrcis.toml is reachable", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}
	if len(result.Matches) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, m := range result.Matches {
		fmt.Printf("%.3f  %s  %s\n", m.Score, ui.Label(m.QualifiedName), ui.DimText(fmt.Sprintf("%s:%d (%s, %s)", m.FilePath, m.LineStart, m.EntityType, m.Repository)))
		if m.Signature != "" {
			fmt.Printf("       %s\n", m.Signature)
		}
		if m.Snippet != "" {
			fmt.Printf("       %s\n", ui.DimText(m.Snippet))
		}
	}
	return nil
}

func runQuerySymbol(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis query symbol <qualified name>")
	}
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	backend, st, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := tools.FindSymbol(ctx, st, tools.FindSymbolArgs{
		QualifiedName: c.Args().First(),
		IncludeSource: c.Bool("source"),
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("symbol lookup failed", err.Error(), "check the data store with 'mrcis status'", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}
	s := result.Symbol
	if s == nil {
		fmt.Printf("Symbol %q not found\n", c.Args().First())
		return nil
	}
	ui.Header(s.QualifiedName)
	fmt.Printf("%s %s\n", ui.Label("Type:"), s.EntityType)
	fmt.Printf("%s %s:%d-%d\n", ui.Label("Location:"), s.FilePath, s.LineStart, s.LineEnd)
	fmt.Printf("%s %s (exported: %t)\n", ui.Label("Visibility:"), s.Visibility, s.IsExported)
	if s.Signature != "" {
		fmt.Printf("%s %s\n", ui.Label("Signature:"), s.Signature)
	}
	if len(s.Decorators) > 0 {
		fmt.Printf("%s %s\n", ui.Label("Decorators:"), strings.Join(s.Decorators, ", "))
	}
	if len(s.BaseClasses) > 0 {
		fmt.Printf("%s %s\n", ui.Label("Bases:"), strings.Join(s.BaseClasses, ", "))
	}
	if len(s.Parameters) > 0 {
		parts := make([]string, 0, len(s.Parameters))
		for _, p := range s.Parameters {
			if p.Type != "" {
				parts = append(parts, p.Name+" "+p.Type)
			} else {
				parts = append(parts, p.Name)
			}
		}
		fmt.Printf("%s %s\n", ui.Label("Parameters:"), strings.Join(parts, ", "))
	}
	if s.ReturnType != "" {
		fmt.Printf("%s %s\n", ui.Label("Returns:"), s.ReturnType)
	}
	if s.Docstring != "" {
		fmt.Printf("\n%s\n", s.Docstring)
	}
	if s.SourceText != "" {
		fmt.Printf("\n%s\n", s.SourceText)
	}
	return nil
}

func runQueryRefs(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis query refs <qualified name>")
	}
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	backend, st, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := tools.GetReferences(ctx, st, tools.GetReferencesArgs{
		QualifiedName:   c.Args().First(),
		IncludeOutgoing: c.Bool("outgoing"),
	})
	if err != nil {
		errors.FatalError(errors.NewNotFoundError("symbol not found", err.Error(), "use 'mrcis query usages' for suffix matching"), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}
	printReferenceEdges(result)
	return nil
}

func runQueryUsages(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis query usages <symbol>")
	}
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	backend, st, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := tools.FindUsages(ctx, st, tools.FindUsagesArgs{
		Symbol:          c.Args().First(),
		Repository:      c.String("repository"),
		IncludeOutgoing: c.Bool("outgoing"),
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("usage lookup failed", err.Error(), "check the data store with 'mrcis status'", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}
	if result.ResolvedSymbol != "" {
		fmt.Printf("%s %s\n\n", ui.Label("Resolved:"), result.ResolvedSymbol)
	}
	if result.DidYouMean != "" {
		fmt.Printf("No symbol matched %q. Did you mean %q?\n", c.Args().First(), result.DidYouMean)
		return nil
	}
	printReferenceEdges(&result.GetReferencesResult)
	return nil
}

func printReferenceEdges(result *tools.GetReferencesResult) {
	if result.IncomingCount == 0 && result.OutgoingCount == 0 {
		fmt.Println("No references")
		return
	}
	if result.IncomingCount > 0 {
		ui.SubHeader(fmt.Sprintf("Incoming (%d)", result.IncomingCount))
		for _, e := range result.Incoming {
			printEdge(e)
		}
	}
	if result.OutgoingCount > 0 {
		ui.SubHeader(fmt.Sprintf("Outgoing (%d)", result.OutgoingCount))
		for _, e := range result.Outgoing {
			printEdge(e)
		}
	}
}

func printEdge(e tools.ReferenceEdge) {
	loc := e.FilePath
	if e.LineNumber > 0 {
		loc = fmt.Sprintf("%s:%d", e.FilePath, e.LineNumber)
	}
	fmt.Printf("  %-12s %s  %s\n", e.RelationType, e.SourceEntity, ui.DimText(loc))
	if e.ContextSnippet != "" {
		fmt.Printf("               %s\n", ui.DimText(e.ContextSnippet))
	}
}

func runQueryRaw(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis query raw <cozoscript>")
	}
	globals := globalFlags(c)

	script := c.Args().First()
	if v := contract.ValidateBatchScript(script); !v.OK {
		errors.FatalError(errors.NewInputError("query rejected", v.Message, "split the script into smaller statements"), globals.JSON)
	}
	if limit := c.Int("limit"); limit > 0 {
		script = strings.TrimSpace(script)
		if !strings.Contains(strings.ToLower(script), ":limit") {
			script = fmt.Sprintf("%s :limit %d", script, limit)
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	backend, _, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	result, err := backend.Query(ctx, script, nil)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("query failed", err.Error(), "check the CozoScript syntax", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(map[string]any{
			"headers": result.Headers,
			"rows":    result.Rows,
			"count":   len(result.Rows),
		})
	}
	printQueryResult(result)
	return nil
}

func printQueryResult(result *storage.QueryResult) {
	if len(result.Rows) == 0 {
		fmt.Println("No results")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for i, h := range result.Headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, strings.ToUpper(h))
	}
	fmt.Fprintln(w)

	for i := range result.Headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, "---")
	}
	fmt.Fprintln(w)

	for _, row := range result.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatCell(cell))
		}
		fmt.Fprintln(w)
	}

	w.Flush()

	fmt.Printf("\n(%d rows)\n", len(result.Rows))
}

func formatCell(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 60 {
			return val[:57] + "..."
		}
		return val
	case float64:
		if val == float64(int(val)) {
			return fmt.Sprintf("%d", int(val))
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return "<null>"
	default:
		s := fmt.Sprintf("%v", val)
		if len(s) > 60 {
			return s[:57] + "..."
		}
		return s
	}
}
