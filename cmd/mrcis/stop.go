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
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Signal the running writer instance to shut down",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for the writer to release its lock",
				Value: 15 * time.Second,
			},
		},
		Action: runStop,
	}
}

func runStop(c *cli.Context) error {
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	holder := writerHolder(cfg)
	if holder == nil {
		ui.Info("No writer instance is running")
		return nil
	}

	proc, err := os.FindProcess(holder.PID)
	if err != nil {
		return fmt.Errorf("find writer process %d: %w", holder.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"cannot signal the writer instance",
			fmt.Sprintf("sending SIGTERM to pid %d failed: %v", holder.PID, err),
			"stop it from the terminal it was started in, or check process ownership",
			err,
		), globals.JSON)
	}

	deadline := time.Now().Add(c.Duration("wait"))
	for time.Now().Before(deadline) {
		if writerHolder(cfg) == nil {
			ui.Successf("Writer instance (pid %d) stopped", holder.PID)
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	ui.Warningf("Writer (pid %d) was signaled but has not released its lock yet", holder.PID)
	return nil
}
