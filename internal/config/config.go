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

// Package config loads the mrcis TOML configuration file into explicit
// struct types. Everything outside this package receives a fully-populated Config,
// never a raw document.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/mrcis/mrcis/internal/errors"
)

// Repository is one configured source repository.
type Repository struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	Branch string `toml:"branch,omitempty"`
}

// Storage configures the data directory and embedded engine.
type Storage struct {
	DataDir string `toml:"data_dir"`
	Backend string `toml:"backend"` // "rocksdb", "sqlite", or "mem"
}

// Embedding configures the embedding provider endpoint.
type Embedding struct {
	URL            string `toml:"url"`
	Key            string `toml:"key,omitempty"`
	Model          string `toml:"model"`
	Dimensions     int    `toml:"dimensions"`
	BatchSize      int    `toml:"batch_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	AppendEOSToken bool   `toml:"append_eos_token,omitempty"`
	EOSToken       string `toml:"eos_token,omitempty"`
}

// Indexing configures the indexing service and resolver.
type Indexing struct {
	BatchSize                int `toml:"batch_size"`
	MaxRetries               int `toml:"max_retries"`
	RetryDelaySeconds        int `toml:"retry_delay_seconds"`
	ResolutionIntervalSeconds int `toml:"resolution_interval_seconds"`
	WatchDebounceMS          int `toml:"watch_debounce_ms"`
	MaxYAMLDepth             int `toml:"max_yaml_depth,omitempty"`
}

// Filters configures file discovery include/exclude rules.
type Filters struct {
	Include      []string `toml:"include,omitempty"`
	Exclude      []string `toml:"exclude,omitempty"`
	MaxDepth     int      `toml:"max_depth,omitempty"`
	MaxFileSize  int64    `toml:"max_file_size,omitempty"`
	UseGitignore bool     `toml:"use_gitignore,omitempty"`
}

// Config is the fully-typed root of a loaded mrcis.toml.
type Config struct {
	Repositories []Repository `toml:"repositories"`
	Storage      Storage      `toml:"storage"`
	Embedding    Embedding    `toml:"embedding"`
	Indexing     Indexing     `toml:"indexing"`
	Filters      Filters      `toml:"filters"`
}

// Default returns a Config populated with mrcis's documented defaults
// (60s resolution interval, 3 retries before permanent_failure, etc).
func Default() Config {
	return Config{
		Storage: Storage{Backend: "rocksdb"},
		Embedding: Embedding{
			Model:          "nomic-embed-text",
			Dimensions:     768,
			BatchSize:      32,
			TimeoutSeconds: 30,
		},
		Indexing: Indexing{
			BatchSize:                 16,
			MaxRetries:                3,
			RetryDelaySeconds:         60,
			ResolutionIntervalSeconds: 60,
			WatchDebounceMS:           300,
			MaxYAMLDepth:              5,
		},
		Filters: Filters{
			MaxDepth:     64,
			UseGitignore: true,
			Exclude:      []string{".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**"},
		},
	}
}

// Load reads and parses a TOML configuration file at path, filling unset
// fields from Default(). An absent file is a ConfigError, not silently
// defaulted, since repositories must be explicit.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError(
				"mrcis configuration not found",
				fmt.Sprintf("no file at %s", path),
				"run 'mrcis init' to create one",
				err,
			)
		}
		return nil, errors.NewConfigError("cannot read mrcis configuration", err.Error(), "check file permissions on "+path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError("cannot parse mrcis configuration", err.Error(), "fix the TOML syntax in "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants Load cannot fill in from
// defaults: every repository needs a unique name and a non-empty root
// path. Whether the path exists on disk is not checked here.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Repositories))
	for _, r := range c.Repositories {
		if r.Name == "" {
			return errors.NewConfigError("invalid mrcis configuration", "a repository entry is missing 'name'", "add a name to every [[repositories]] entry", nil)
		}
		if seen[r.Name] {
			return errors.NewConfigError("invalid mrcis configuration", fmt.Sprintf("duplicate repository name %q", r.Name), "repository names must be unique", nil)
		}
		seen[r.Name] = true
		if r.Path == "" {
			return errors.NewConfigError("invalid mrcis configuration", fmt.Sprintf("repository %q is missing 'path'", r.Name), "set an absolute root path for every repository", nil)
		}
	}
	return nil
}

// DataDirFor resolves the configured data directory, defaulting to
// ~/.mrcis/data/<repo-set-id>.
func (c *Config) DataDirFor(repoSetID string) (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if repoSetID == "" {
		repoSetID = "default"
	}
	return filepath.Join(home, ".mrcis", "data", repoSetID), nil
}
