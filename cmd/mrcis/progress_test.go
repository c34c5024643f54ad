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
	"bytes"
	"os"
	"testing"
)

func TestNewProgressConfig(t *testing.T) {
	tests := []struct {
		name            string
		globals         GlobalFlags
		expectedEnabled bool
		expectedNoColor bool
	}{
		{
			name:            "default flags - progress disabled in test (not a TTY)",
			globals:         GlobalFlags{},
			expectedEnabled: false, // stderr is not a TTY in test environment
			expectedNoColor: false,
		},
		{
			name:            "quiet mode - progress disabled",
			globals:         GlobalFlags{Quiet: true},
			expectedEnabled: false,
			expectedNoColor: false,
		},
		{
			name:            "JSON mode - progress disabled (quiet auto-set)",
			globals:         GlobalFlags{JSON: true, Quiet: true},
			expectedEnabled: false,
			expectedNoColor: false,
		},
		{
			name:            "noColor flag propagates to config",
			globals:         GlobalFlags{NoColor: true},
			expectedEnabled: false, // stderr not a TTY in test
			expectedNoColor: true,
		},
		{
			name:            "all flags combined",
			globals:         GlobalFlags{JSON: true, Quiet: true, NoColor: true},
			expectedEnabled: false,
			expectedNoColor: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewProgressConfig(tt.globals)
			if cfg.Enabled != tt.expectedEnabled {
				t.Errorf("NewProgressConfig().Enabled = %v, want %v", cfg.Enabled, tt.expectedEnabled)
			}
			if cfg.NoColor != tt.expectedNoColor {
				t.Errorf("NewProgressConfig().NoColor = %v, want %v", cfg.NoColor, tt.expectedNoColor)
			}
			if cfg.Writer != os.Stderr {
				t.Error("NewProgressConfig().Writer should be os.Stderr")
			}
		})
	}
}

func TestNewProgressBar(t *testing.T) {
	t.Run("disabled config returns nil", func(t *testing.T) {
		cfg := ProgressConfig{Enabled: false}
		bar := NewProgressBar(cfg, 100, "Test")
		if bar != nil {
			t.Error("NewProgressBar() should return nil when disabled")
		}
	})

	t.Run("enabled config returns non-nil with correct properties", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := ProgressConfig{Enabled: true, Writer: &buf, NoColor: false}
		bar := NewProgressBar(cfg, 100, "Test")
		if bar == nil {
			t.Fatal("NewProgressBar() should return non-nil when enabled")
		}
		// Verify bar can be used without panic
		_ = bar.Set(50)
		_ = bar.Finish()
	})

	t.Run("zero total creates valid bar", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := ProgressConfig{Enabled: true, Writer: &buf}
		bar := NewProgressBar(cfg, 0, "Empty")
		if bar == nil {
			t.Fatal("NewProgressBar() should handle zero total")
		}
		_ = bar.Finish()
	})
}

func TestNewSpinner(t *testing.T) {
	t.Run("disabled config returns nil", func(t *testing.T) {
		cfg := ProgressConfig{Enabled: false}
		spinner := NewSpinner(cfg, "Test")
		if spinner != nil {
			t.Error("NewSpinner() should return nil when disabled")
		}
	})

	t.Run("enabled config returns non-nil", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := ProgressConfig{Enabled: true, Writer: &buf, NoColor: false}
		spinner := NewSpinner(cfg, "Test")
		if spinner == nil {
			t.Fatal("NewSpinner() should return non-nil when enabled")
		}
		_ = spinner.Add(1)
		_ = spinner.Finish()
	})
}

// TestProgressConfigQuietDisablesProgress verifies that quiet mode disables progress
// regardless of TTY status. This is important for JSON output and scripted usage.
func TestProgressConfigQuietDisablesProgress(t *testing.T) {
	cfg := NewProgressConfig(GlobalFlags{Quiet: true})
	if cfg.Enabled {
		t.Error("Progress should be disabled when Quiet=true")
	}

	cfg = NewProgressConfig(GlobalFlags{JSON: true, Quiet: true})
	if cfg.Enabled {
		t.Error("Progress should be disabled when JSON=true (quiet auto-set)")
	}
}
