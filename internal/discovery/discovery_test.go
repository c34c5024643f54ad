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

package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWalker_DiscoverFindsFilesAndDetectsLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "svc/handler.py", "def handle():\n    pass\n")
	writeFile(t, root, "vendor/lib/ignored.go", "package ignored\n")

	w := NewWalker(nil, Options{ExcludeGlobs: []string{"vendor/**"}})
	res, err := w.Discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	found := map[string]File{}
	for _, f := range res.Files {
		found[f.Path] = f
	}
	if _, ok := found["vendor/lib/ignored.go"]; ok {
		t.Fatalf("expected vendor/** excluded, got %+v", res.Files)
	}
	mainGo, ok := found["main.go"]
	if !ok {
		t.Fatalf("expected main.go discovered, got %+v", res.Files)
	}
	if mainGo.Language != "go" {
		t.Errorf("expected language go, got %q", mainGo.Language)
	}
	if mainGo.Checksum == "" {
		t.Errorf("expected non-empty sha256 checksum")
	}
	if mainGo.FastHash == 0 {
		t.Errorf("expected non-zero xxhash fast hash")
	}

	handler, ok := found["svc/handler.py"]
	if !ok {
		t.Fatalf("expected svc/handler.py discovered, got %+v", res.Files)
	}
	if handler.Language != "python" {
		t.Errorf("expected language python, got %q", handler.Language)
	}
}

func TestWalker_DiscoverHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\n*.log\n")
	writeFile(t, root, "build/output.bin", "binary")
	writeFile(t, root, "debug.log", "log line")
	writeFile(t, root, "src/app.go", "package app\n")

	w := NewWalker(nil, Options{UseGitignore: true})
	res, err := w.Discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	for _, f := range res.Files {
		if f.Path == "build/output.bin" || f.Path == "debug.log" {
			t.Fatalf("expected gitignored file excluded, got %s in %+v", f.Path, res.Files)
		}
	}
	var sawApp bool
	for _, f := range res.Files {
		if f.Path == "src/app.go" {
			sawApp = true
		}
	}
	if !sawApp {
		t.Fatalf("expected src/app.go discovered, got %+v", res.Files)
	}
}

func TestWalker_DiscoverSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", "0123456789")
	writeFile(t, root, "small.txt", "hi")

	w := NewWalker(nil, Options{MaxFileSize: 5})
	res, err := w.Discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, f := range res.Files {
		if f.Path == "big.txt" {
			t.Fatalf("expected big.txt skipped for exceeding MaxFileSize, got %+v", res.Files)
		}
	}
	if res.SkipReasons["too_large"] != 1 {
		t.Fatalf("expected one too_large skip reason, got %+v", res.SkipReasons)
	}
}

func TestWalker_DiscoverExcludesDotGit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "README.md", "# hello\n")

	w := NewWalker(nil, Options{})
	res, err := w.Discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, f := range res.Files {
		if f.Path == ".git/HEAD" {
			t.Fatalf("expected .git excluded, got %+v", res.Files)
		}
	}
}
