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

package extract

import (
	"testing"

	"github.com/mrcis/mrcis/internal/entity"
)

func TestMarkdownExtractor_HeadingHierarchyIsDotted(t *testing.T) {
	src := []byte(`# Guide

## Setup

### Requirements

## Usage
`)
	ex := NewMarkdownExtractor()
	res, err := ex.Extract(Input{FilePath: "README.md", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	qnames := map[string]bool{}
	for _, e := range res.Entities {
		qnames[e.Header().QualifiedName] = true
	}
	for _, want := range []string{"Guide", "Guide.Setup", "Guide.Setup.Requirements", "Guide.Usage"} {
		if !qnames[want] {
			t.Errorf("missing section %q, got %v", want, qnames)
		}
	}
}

func TestMarkdownExtractor_FencedCodeBlockCarriesLanguageTag(t *testing.T) {
	src := []byte("# Doc\n\n```go\nfunc main() {}\n```\n")
	ex := NewMarkdownExtractor()
	res, err := ex.Extract(Input{FilePath: "doc.md", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var block *entity.Variable
	for _, e := range res.Entities {
		if v, ok := e.(*entity.Variable); ok {
			block = v
		}
	}
	if block == nil {
		t.Fatal("expected a Variable entity for the fenced code block")
	}
	if len(block.Hdr.Decorators) != 1 || block.Hdr.Decorators[0] != "go" {
		t.Errorf("expected language tag decorator [go], got %v", block.Hdr.Decorators)
	}
	if block.Hdr.QualifiedName != "Doc.code_block_1" {
		t.Errorf("expected Doc.code_block_1, got %q", block.Hdr.QualifiedName)
	}
}

func TestMarkdownExtractor_LinksBecomeImports(t *testing.T) {
	src := []byte(`# Index

See [the design](docs/design.md) and [upstream](https://example.com/).
`)
	ex := NewMarkdownExtractor()
	res, err := ex.Extract(Input{FilePath: "index.md", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	imports := map[string]*entity.Import{}
	for _, e := range res.Entities {
		if imp, ok := e.(*entity.Import); ok {
			imports[imp.SourceModule] = imp
		}
	}
	rel, ok := imports["docs/design.md"]
	if !ok {
		t.Fatalf("expected an Import for docs/design.md, got %v", imports)
	}
	if !rel.IsRelative {
		t.Error("docs/design.md should be relative")
	}
	abs, ok := imports["https://example.com/"]
	if !ok {
		t.Fatal("expected an Import for the absolute URL")
	}
	if abs.IsRelative {
		t.Error("absolute URL should not be marked relative")
	}

	// Only the relative link should enter the pending-reference queue.
	for _, p := range res.PendingReferences {
		if p.RelationType != entity.RelationImports {
			t.Errorf("unexpected relation type %s", p.RelationType)
		}
		if p.TargetQualifiedName == "https://example.com/" {
			t.Error("absolute URLs must not produce pending references")
		}
	}
}
