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

// Package discovery walks a repository's working tree and produces the
// stable, repository-relative file list the ingestion pipeline consumes.
package discovery

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
)

// File describes one discovered file within a repository.
type File struct {
	Path     string // repository-relative, POSIX-normalized
	FullPath string
	Size     int64
	Checksum string // sha256 hex, content-addressed identity (entity.NewID inputs)
	FastHash uint64 // xxhash of content, cheap dirty-check for re-index skip decisions
	Language string
}

// Result is the outcome of one discovery walk.
type Result struct {
	Files           []File
	SkipReasons     map[string]int
	LastIndexedRef  string // best-effort `git rev-parse HEAD` of the tree walked
}

// Options configures a Walker.
type Options struct {
	ExcludeGlobs []string // doublestar patterns, relative to RootPath
	MaxFileSize  int64    // 0 disables the limit
	UseGitignore bool
}

// Walker discovers files under a repository root.
type Walker struct {
	logger *slog.Logger
	opts   Options
}

// NewWalker builds a Walker. Glob matching is delegated to doublestar;
// .gitignore patterns are folded into the exclude set when enabled.
func NewWalker(logger *slog.Logger, opts Options) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{logger: logger, opts: opts}
}

// Discover walks rootPath and returns every file not excluded by the
// configured globs or, when enabled, any .gitignore found along the way.
func (w *Walker) Discover(rootPath string) (*Result, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}

	ignorePatterns := append([]string{}, w.opts.ExcludeGlobs...)
	if w.opts.UseGitignore {
		patterns, err := loadGitignore(absRoot)
		if err != nil {
			w.logger.Warn("discovery.gitignore.read_error", "root", absRoot, "err", err)
		} else {
			ignorePatterns = append(ignorePatterns, patterns...)
		}
	}
	// .git itself is never indexed.
	ignorePatterns = append(ignorePatterns, ".git/**", ".git")

	var files []File
	skipReasons := make(map[string]int)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("discovery.walk.error", "path", path, "err", err)
			return nil
		}
		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		normalized := filepath.ToSlash(relPath)

		if d.IsDir() {
			if matchesAny(normalized+"/", ignorePatterns) || matchesAny(normalized, ignorePatterns) {
				skipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAny(normalized, ignorePatterns) {
			skipReasons["excluded"]++
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			skipReasons["too_large"]++
			w.logger.Warn("discovery.walk.skip_large_file", "path", normalized, "size", info.Size())
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			w.logger.Warn("discovery.walk.read_error", "path", normalized, "err", readErr)
			return nil
		}

		files = append(files, File{
			Path:     normalized,
			FullPath: path,
			Size:     info.Size(),
			Checksum: checksumBytes(data),
			FastHash: xxhash.Sum64(data),
			Language: detectLanguage(normalized),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk repository: %w", walkErr)
	}

	return &Result{
		Files:          files,
		SkipReasons:    skipReasons,
		LastIndexedRef: lastIndexedCommit(absRoot),
	}, nil
}

// MatchesAny reports whether path matches any of the doublestar
// exclude patterns, exported so internal/watch can apply the same
// ignore rules discovery uses to a single filesystem event without
// re-running a full tree walk.
func MatchesAny(path string, patterns []string) bool {
	return matchesAny(path, patterns)
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(p), "/")
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, filepath.Base(path)); ok {
				return true
			}
		}
		if !strings.HasSuffix(p, "/**") {
			if ok, _ := doublestar.Match(p+"/**", path); ok {
				return true
			}
		}
	}
	return false
}

// loadGitignore reads a top-level .gitignore and converts each non-comment
// line into a doublestar pattern. Negation (`!pattern`) and nested
// per-directory .gitignore files are intentionally out of scope — this is
// best-effort discovery filtering, not a full git status implementation.
func loadGitignore(root string) ([]string, error) {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimPrefix(line, "/")
		if strings.HasSuffix(line, "/") {
			line += "**"
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

func checksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// lastIndexedCommit best-effort resolves the current commit of root, empty
// when root is not a git worktree or git is unavailable.
func lastIndexedCommit(root string) string {
	cmd := exec.Command("git", "-C", root, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var languageByExt = map[string]string{
	".go":         "go",
	".py":         "python",
	".pyi":        "python",
	".js":         "javascript",
	".jsx":        "javascript",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".rs":         "rust",
	".java":       "java",
	".kt":         "kotlin",
	".kts":        "kotlin",
	".rb":         "ruby",
	".rake":       "ruby",
	".md":         "markdown",
	".markdown":   "markdown",
	".html":       "html",
	".htm":        "html",
	".yaml":       "yaml",
	".yml":        "yaml",
	".dockerfile": "dockerfile",
}

// DetectLanguage infers a file's language from its extension or
// filename (Dockerfile/Gemfile/Rakefile), exported so other components
// (internal/indexing, internal/watch) that index a single file outside
// a full Discover walk can classify it the same way.
func DetectLanguage(path string) string {
	return detectLanguage(path)
}

func detectLanguage(path string) string {
	base := filepath.Base(path)
	if base == "Dockerfile" || strings.HasPrefix(base, "Dockerfile.") {
		return "dockerfile"
	}
	if base == "Gemfile" || base == "Rakefile" {
		return "ruby"
	}
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return ""
}
