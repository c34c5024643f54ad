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

func TestRustExtractor_UseListOneImportPerSymbol(t *testing.T) {
	src := []byte(`use std::collections::{HashMap, HashSet as Set};

fn main() {}
`)
	ex := NewRustExtractor()
	res, err := ex.Extract(Input{FilePath: "main.rs", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var imports []*entity.Import
	for _, e := range res.Entities {
		if imp, ok := e.(*entity.Import); ok {
			imports = append(imports, imp)
		}
	}
	if len(imports) != 2 {
		t.Fatalf("expected 2 import entities (one per symbol), got %d: %+v", len(imports), imports)
	}

	var sawHashMap, sawAliasedSet bool
	for _, imp := range imports {
		if imp.SourceModule == "std::collections::HashMap" {
			sawHashMap = true
		}
		if imp.SourceModule == "std::collections::HashSet" && imp.Alias == "Set" {
			sawAliasedSet = true
		}
	}
	if !sawHashMap {
		t.Errorf("expected std::collections::HashMap import, got %+v", imports)
	}
	if !sawAliasedSet {
		t.Errorf("expected std::collections::HashSet aliased as Set, got %+v", imports)
	}
}

func TestRustExtractor_ImplForEmitsImplements(t *testing.T) {
	src := []byte(`trait Greeter {
    fn greet(&self);
}

struct English;

impl Greeter for English {
    fn greet(&self) {}
}
`)
	ex := NewRustExtractor()
	res, err := ex.Extract(Input{FilePath: "lib.rs", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var found bool
	for _, p := range res.PendingReferences {
		if p.RelationType == entity.RelationImplements && p.TargetQualifiedName == "Greeter" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected implements pending reference to Greeter, got %+v", res.PendingReferences)
	}
}
