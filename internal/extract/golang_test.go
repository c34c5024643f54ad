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

func TestGoExtractor_PackageQualifiedCall(t *testing.T) {
	src := []byte(`package main

import "strings"

func check(s string) bool {
	return strings.Contains(s, "hello")
}
`)
	ex := NewGoExtractor()
	res, err := ex.Extract(Input{FilePath: "main.go", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var found bool
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "strings.Contains" && p.ReceiverExpr == "strings" && p.RelationType == entity.RelationCalls {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pending reference to strings.Contains with receiver_expr=strings, got %+v", res.PendingReferences)
	}
}

func TestGoExtractor_MethodReceiverStripsPointer(t *testing.T) {
	src := []byte(`package svc

type Worker struct{}

func (w *Worker) Run() {
	w.helper()
}

func (w *Worker) helper() {}
`)
	ex := NewGoExtractor()
	res, err := ex.Extract(Input{FilePath: "svc.go", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var runMethod *entity.Method
	for _, e := range res.Entities {
		if m, ok := e.(*entity.Method); ok && m.Hdr.Name == "Run" {
			runMethod = m
		}
	}
	if runMethod == nil {
		t.Fatal("expected to find method Run")
	}
	if runMethod.ParentClass != "Worker" {
		t.Errorf("expected receiver type Worker (pointer stripped), got %q", runMethod.ParentClass)
	}
	if runMethod.Hdr.QualifiedName != "svc.Worker.Run" {
		t.Errorf("expected svc.Worker.Run, got %q", runMethod.Hdr.QualifiedName)
	}
}

func TestGoExtractor_BuiltinCallsAreDenylisted(t *testing.T) {
	src := []byte(`package main

func f() {
	s := make([]int, 0)
	_ = append(s, 1)
	_ = len(s)
}
`)
	ex := NewGoExtractor()
	res, err := ex.Extract(Input{FilePath: "main.go", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "make" || p.TargetQualifiedName == "append" || p.TargetQualifiedName == "len" {
			t.Errorf("builtin %q should not produce a pending reference", p.TargetQualifiedName)
		}
	}
}
