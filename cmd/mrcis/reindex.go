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
	"github.com/mrcis/mrcis/internal/lock"
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/tools"
)

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:      "reindex",
		Usage:     "Re-scan one repository and enqueue changed files",
		ArgsUsage: "<repository>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Reset failure counts and re-enqueue every file"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report how many files would be queued without mutating state"},
		},
		Action: runReindex,
	}
}

func runReindex(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: mrcis reindex <repository>")
	}
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}

	backend, st, err := openStore(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = backend.Close() }()

	// A one-shot reindex writes to the queue, so it needs the writer
	// lock for its duration. Failing to take it means a live writer
	// owns the data directory; pass isWriter=false and let the tool
	// produce its refusal result.
	lk := lock.New(dataDir, lockStaleAfter)
	isWriter := false
	if !c.Bool("dry-run") {
		acquired, lockErr := lk.TryAcquire()
		if lockErr != nil {
			return lockErr
		}
		isWriter = acquired
		if acquired {
			defer func() { _ = lk.Release() }()
		}
	} else {
		isWriter = true // dry-run mutates nothing and needs no lock
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := tools.ReindexRepository(ctx, st, isWriter, discoveryOptions(cfg), tools.ReindexRepositoryArgs{
		Repository: c.Args().First(),
		Force:      c.Bool("force"),
		DryRun:     c.Bool("dry-run"),
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("reindex failed", err.Error(), "check the repository name with 'mrcis status'", err), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(result)
	}
	switch result.Status {
	case tools.ReindexRefused:
		ui.Errorf("Refused: %s", result.Message)
	case tools.ReindexDryRun:
		ui.Infof("Dry run: %d files would be queued", result.FilesQueued)
	default:
		ui.Successf("Queued %d files; run 'mrcis index' or 'mrcis start' to process them", result.FilesQueued)
	}
	return nil
}
