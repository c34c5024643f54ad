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
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/tools"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show per-repository index status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repository",
				Aliases: []string{"r"},
				Usage:   "Limit to one repository by name",
			},
		},
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
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

	holder := writerHolder(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := tools.GetIndexStatus(ctx, st, holder != nil, tools.GetIndexStatusArgs{
		Repository: c.String("repository"),
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("cannot read index status", err.Error(), "check that the data store was initialized with 'mrcis init'", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}

	ui.Header("mrcis Index Status")
	if holder != nil {
		fmt.Printf("%s pid %d on %s\n", ui.Label("Writer:"), holder.PID, holder.Hostname)
	} else {
		fmt.Printf("%s none (no live writer instance)\n", ui.Label("Writer:"))
	}
	fmt.Println()

	if len(result.Repositories) == 0 {
		fmt.Println("No repositories indexed yet. Run 'mrcis index' first.")
		return nil
	}

	for _, r := range result.Repositories {
		ui.SubHeader(r.Name)
		fmt.Printf("  Status:     %s\n", r.Status)
		fmt.Printf("  Files:      %s\n", ui.CountText(r.FileCount))
		fmt.Printf("  Entities:   %s\n", ui.CountText(r.EntityCount))
		fmt.Printf("  Relations:  %s\n", ui.CountText(r.RelationCount))
		fmt.Printf("  Pending:    %s\n", ui.CountText(r.PendingFiles))
		if r.FailedFiles > 0 {
			fmt.Printf("  Failed:     %s\n", ui.CountText(r.FailedFiles))
		}
		if r.PermanentFailures > 0 {
			ui.Warningf("  %d files exceeded the retry budget; re-run with 'mrcis reindex %s --force'", r.PermanentFailures, r.Name)
		}
		if r.LastIndexedAt > 0 {
			fmt.Printf("  Indexed at: %s\n", time.Unix(int64(r.LastIndexedAt), 0).Format(time.RFC3339))
		}
		if r.LastIndexedCommit != "" {
			fmt.Printf("  Commit:     %s\n", ui.DimText(r.LastIndexedCommit))
		}
		if r.ErrorMessage != "" {
			ui.Errorf("  %s", r.ErrorMessage)
		}
		fmt.Println()
	}
	return nil
}
