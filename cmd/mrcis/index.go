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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/runtime"
	"github.com/mrcis/mrcis/internal/ui"
	"github.com/mrcis/mrcis/pkg/tools"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Index the configured repositories once: scan, drain the queue, exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Re-enqueue every known file regardless of checksum",
			},
		},
		Action: runIndexOnce,
	}
}

func runIndexOnce(c *cli.Context) error {
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rt := runtime.New(cfg, slog.Default())
	if err := rt.Start(ctx, dataDir); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		_ = rt.Stop(stopCtx)
	}()

	if rt.Mode() != runtime.ModeWriter {
		errors.FatalError(errors.NewInputError(
			"another mrcis instance holds the writer lock",
			"a live writer is already indexing this data directory",
			"use 'mrcis reindex <repository>' against it, or 'mrcis stop' to shut it down first",
		), globals.JSON)
	}

	if c.Bool("full") {
		for _, r := range cfg.Repositories {
			repo, err := rt.Store.GetRepositoryByName(ctx, r.Name)
			if err != nil {
				continue
			}
			if _, err := rt.Store.MarkRepositoryFilesPending(ctx, repo.ID); err != nil {
				return fmt.Errorf("re-enqueue %s: %w", r.Name, err)
			}
		}
	}

	if err := drainQueue(ctx, rt, globals); err != nil {
		return err
	}

	status, err := tools.GetIndexStatus(ctx, rt.Store, true, tools.GetIndexStatusArgs{})
	if err != nil {
		return err
	}
	if globals.JSON {
		return output.JSON(status)
	}
	printIndexSummary(status)
	return nil
}

// drainQueue polls the durable queue until it stays empty, driving a
// progress bar from the shrinking backlog. The indexing service's own
// loop does the work; this only watches it.
func drainQueue(ctx context.Context, rt *runtime.Runtime, globals GlobalFlags) error {
	initial, err := rt.Store.GetQueueLength(ctx)
	if err != nil {
		return err
	}
	if initial == 0 {
		if !globals.Quiet {
			ui.Info("Nothing to index: all files are up to date")
		}
		return nil
	}

	bar := NewProgressBar(NewProgressConfig(globals), int64(initial), "indexing")
	emptyPolls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}

		remaining, err := rt.Store.GetQueueLength(ctx)
		if err != nil {
			return err
		}
		if remaining > initial {
			initial = remaining
			if bar != nil {
				bar.ChangeMax64(int64(initial))
			}
		}
		if bar != nil {
			_ = bar.Set(initial - remaining)
		}
		if remaining == 0 {
			emptyPolls++
			if emptyPolls >= 3 {
				if bar != nil {
					_ = bar.Finish()
				}
				return nil
			}
		} else {
			emptyPolls = 0
		}
	}
}

func printIndexSummary(status *tools.GetIndexStatusResult) {
	fmt.Println()
	ui.Header("Indexing Complete")
	for _, r := range status.Repositories {
		fmt.Printf("%s %s\n", ui.Label(r.Name+":"), r.Status)
		fmt.Printf("  Files:     %s\n", ui.CountText(r.FileCount))
		fmt.Printf("  Entities:  %s\n", ui.CountText(r.EntityCount))
		fmt.Printf("  Relations: %s\n", ui.CountText(r.RelationCount))
		if r.FailedFiles > 0 || r.PermanentFailures > 0 {
			ui.Warningf("  %d failed, %d permanently failed", r.FailedFiles, r.PermanentFailures)
		}
	}
}
