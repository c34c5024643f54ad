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
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Delete all indexed data for this configuration (destructive!)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Confirm the reset (required)"},
		},
		Action: runReset,
	}
}

func runReset(c *cli.Context) error {
	globals := globalFlags(c)
	if !c.Bool("yes") {
		errors.FatalError(errors.NewInputError(
			"reset requires confirmation",
			"this deletes every indexed entity, relation, and vector for this configuration",
			"re-run with --yes to confirm",
		), globals.JSON)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if holder := writerHolder(cfg); holder != nil {
		errors.FatalError(errors.NewInputError(
			"a writer instance is still running",
			fmt.Sprintf("pid %d holds the writer lock", holder.PID),
			"run 'mrcis stop' first",
		), globals.JSON)
	}

	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		ui.Info("No local data found; nothing to reset")
		return nil
	}

	fmt.Printf("Deleting %s ...\n", dataDir)
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("delete data directory: %w", err)
	}

	ui.Success("Reset complete: all indexed data has been deleted")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  mrcis init      Re-create the data store")
	fmt.Println("  mrcis index     Reindex the configured repositories")
	return nil
}
