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
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressConfig determines if and how progress should be displayed.
type ProgressConfig struct {
	// Enabled indicates whether progress bars should be shown.
	// Disabled when --json, -q flags are used, or when stderr is not a TTY.
	Enabled bool

	// Writer is where progress output goes (always os.Stderr).
	Writer io.Writer

	// NoColor disables colored output in progress bars.
	NoColor bool
}

// NewProgressConfig creates a progress configuration based on global flags and TTY detection.
//
// Progress is disabled when:
//   - --json flag is set (quiet is auto-set)
//   - -q/--quiet flag is set
//   - stderr is not a TTY (piped output, CI environments, etc.)
func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	enabled := !globals.Quiet && isatty.IsTerminal(os.Stderr.Fd())

	return ProgressConfig{
		Enabled: enabled,
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar creates a progress bar with consistent styling.
// Returns nil if progress is disabled, allowing callers to safely check for nil.
//
// Parameters:
//   - cfg: Progress configuration from NewProgressConfig
//   - total: Total number of items to process
//   - description: Short description shown before the progress bar
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewSpinner creates an indeterminate progress spinner for operations
// where the total count is unknown.
// Returns nil if progress is disabled.
//
// Parameters:
//   - cfg: Progress configuration from NewProgressConfig
//   - description: Short description shown before the spinner
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}
