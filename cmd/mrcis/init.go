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
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/bootstrap"
	"github.com/mrcis/mrcis/internal/config"
	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/output"
	"github.com/mrcis/mrcis/internal/ui"
)

const configTemplate = `# mrcis configuration

[[repositories]]
name = %q
path = %q

[storage]
backend = "rocksdb"
# data_dir = ""            # default: ~/.mrcis/data/<repo-set>

[embedding]
# url = "http://localhost:11434/v1/embeddings"
model = "nomic-embed-text"
dimensions = 768
batch_size = 32
timeout_seconds = 30

[indexing]
batch_size = 16
max_retries = 3
retry_delay_seconds = 60
resolution_interval_seconds = 60
watch_debounce_ms = 300

[filters]
exclude = [".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**"]
use_gitignore = true
`

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create mrcis.toml and initialize the local data store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing mrcis.toml"},
			&cli.StringFlag{Name: "name", Usage: "Repository name (default: current directory name)"},
			&cli.StringFlag{Name: "engine", Usage: "Storage engine: rocksdb, sqlite, or mem", Value: "rocksdb"},
			&cli.IntFlag{Name: "dimensions", Usage: "Embedding vector dimensions", Value: 768},
		},
		Action: runInit,
	}
}

func runInit(c *cli.Context) error {
	globals := globalFlags(c)
	configPath := globals.ConfigPath

	if _, err := os.Stat(configPath); err == nil && !c.Bool("force") {
		errors.FatalError(errors.NewInputError(
			"mrcis configuration already exists",
			configPath+" is present",
			"use --force to overwrite it",
		), globals.JSON)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot get current directory: %w", err)
	}
	name := c.String("name")
	if name == "" {
		name = filepath.Base(cwd)
	}

	content := fmt.Sprintf(configTemplate, name, cwd)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}

	info, err := bootstrap.InitProject(bootstrap.ProjectConfig{
		ProjectID:           repoSetID(cfg),
		DataDir:             dataDir,
		Engine:              c.String("engine"),
		EmbeddingDimensions: c.Int("dimensions"),
	}, nil)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"cannot initialize local data store",
			err.Error(),
			"check write permissions under "+dataDir,
			err,
		), globals.JSON)
	}

	if globals.JSON {
		return output.JSON(map[string]any{
			"config":   configPath,
			"data_dir": info.DataDir,
			"engine":   info.Engine,
		})
	}
	ui.Successf("Created %s", configPath)
	ui.Successf("Initialized data store at %s", ui.DimText(info.DataDir))
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  mrcis index     Index the configured repositories once")
	fmt.Println("  mrcis start     Run the indexing service with file watching")
	return nil
}

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List initialized data stores under ~/.mrcis/data",
		Action: func(c *cli.Context) error {
			globals := globalFlags(c)
			projects, err := bootstrap.ListProjects()
			if err != nil {
				return err
			}
			if globals.JSON {
				return output.JSON(map[string]any{"projects": projects})
			}
			if len(projects) == 0 {
				fmt.Println("No projects found. Run 'mrcis init' first.")
				return nil
			}
			for _, p := range projects {
				fmt.Println(p)
			}
			return nil
		},
	}
}
