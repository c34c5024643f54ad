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
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/ui"
)

const postCommitHookContent = `#!/bin/sh
# mrcis auto-index hook - queues incremental indexing for this commit
# Installed by: mrcis install-hook
# Remove with: mrcis install-hook --remove

mrcis reindex %q --config %q 2>/dev/null &
`

func installHookCommand() *cli.Command {
	return &cli.Command{
		Name:  "install-hook",
		Usage: "Install a git post-commit hook that queues reindexing after each commit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "repository", Aliases: []string{"r"}, Usage: "Repository name to reindex (default: the single configured repository)"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing hook"},
			&cli.BoolFlag{Name: "remove", Usage: "Remove the hook instead of installing"},
		},
		Action: runInstallHook,
	}
}

func runInstallHook(c *cli.Context) error {
	globals := globalFlags(c)

	gitDir, err := findGitDir()
	if err != nil {
		errors.FatalError(errors.NewInputError("not inside a git repository", err.Error(), "run this from a repository working tree"), globals.JSON)
	}
	hookPath := filepath.Join(gitDir, "hooks", "post-commit")

	if c.Bool("remove") {
		if err := removeHook(hookPath); err != nil {
			return err
		}
		ui.Success("Git hook removed")
		return nil
	}

	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	repoName := c.String("repository")
	if repoName == "" {
		if len(cfg.Repositories) != 1 {
			errors.FatalError(errors.NewInputError(
				"cannot pick a repository for the hook",
				fmt.Sprintf("%d repositories are configured", len(cfg.Repositories)),
				"pass --repository <name>",
			), globals.JSON)
		}
		repoName = cfg.Repositories[0].Name
	}

	configAbs, err := filepath.Abs(globals.ConfigPath)
	if err != nil {
		return err
	}

	if err := installHook(hookPath, fmt.Sprintf(postCommitHookContent, repoName, configAbs), c.Bool("force")); err != nil {
		errors.FatalError(errors.NewInputError("cannot install git hook", err.Error(), "use --force to overwrite an existing hook"), globals.JSON)
	}
	ui.Successf("Git hook installed: %s", hookPath)
	return nil
}

// findGitDir walks up from the current directory until it finds .git.
func findGitDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := cwd
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil && info.IsDir() {
			return gitPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .git directory found above %s", cwd)
		}
		dir = parent
	}
}

func installHook(hookPath, content string, force bool) error {
	if existing, err := os.ReadFile(hookPath); err == nil && !force {
		if strings.Contains(string(existing), "mrcis install-hook") {
			return nil // already installed
		}
		return fmt.Errorf("a post-commit hook already exists at %s", hookPath)
	}
	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(hookPath, []byte(content), 0o755)
}

func removeHook(hookPath string) error {
	existing, err := os.ReadFile(hookPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !strings.Contains(string(existing), "mrcis install-hook") {
		return fmt.Errorf("the hook at %s was not installed by mrcis; remove it manually", hookPath)
	}
	return os.Remove(hookPath)
}
