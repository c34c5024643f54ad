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

func TestDockerfileExtractor_FromIsImport(t *testing.T) {
	src := []byte(`FROM golang:1.24 AS builder
FROM scratch
`)
	ex := NewDockerfileExtractor()
	res, err := ex.Extract(Input{FilePath: "Dockerfile", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var builder *entity.Import
	for _, e := range res.Entities {
		if imp, ok := e.(*entity.Import); ok && imp.Alias == "builder" {
			builder = imp
		}
	}
	if builder == nil {
		t.Fatal("expected an Import entity for the builder stage")
	}
	if builder.SourceModule != "golang:1.24" {
		t.Errorf("expected source_module golang:1.24, got %q", builder.SourceModule)
	}

	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "scratch" {
			t.Error("FROM scratch must not produce an imports reference")
		}
	}
}

func TestDockerfileExtractor_EnvArgExposeAreVariables(t *testing.T) {
	src := []byte(`FROM alpine:3.20
ARG VERSION=dev
ENV APP_PORT=8080
EXPOSE 8080 9090
`)
	ex := NewDockerfileExtractor()
	res, err := ex.Extract(Input{FilePath: "Dockerfile", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	vars := map[string]*entity.Variable{}
	for _, e := range res.Entities {
		if v, ok := e.(*entity.Variable); ok {
			vars[v.Hdr.Name] = v
		}
	}
	arg, ok := vars["VERSION"]
	if !ok {
		t.Fatal("expected ARG VERSION variable")
	}
	if !arg.IsConstant {
		t.Error("ARG should be marked is_constant")
	}
	if _, ok := vars["APP_PORT"]; !ok {
		t.Error("expected ENV APP_PORT variable")
	}
	if _, ok := vars["8080"]; !ok {
		t.Error("expected EXPOSE 8080 variable")
	}
	if _, ok := vars["9090"]; !ok {
		t.Error("expected EXPOSE 9090 variable")
	}
}

func TestDockerfileExtractor_EntrypointAndCmdAreFunctions(t *testing.T) {
	src := []byte(`FROM alpine:3.20
ENTRYPOINT ["/bin/server"]
CMD ["--help"]
`)
	ex := NewDockerfileExtractor()
	res, err := ex.Extract(Input{FilePath: "Dockerfile", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	fns := map[string]*entity.Function{}
	for _, e := range res.Entities {
		if f, ok := e.(*entity.Function); ok {
			fns[f.Hdr.Name] = f
		}
	}
	ep, ok := fns["entrypoint"]
	if !ok {
		t.Fatal("expected an entrypoint function")
	}
	if ep.Hdr.Docstring != `["/bin/server"]` {
		t.Errorf("expected the command vector in docstring, got %q", ep.Hdr.Docstring)
	}
	if _, ok := fns["cmd"]; !ok {
		t.Error("expected a cmd function")
	}
}

func TestDockerfileExtractor_CopyFromReferencesStage(t *testing.T) {
	src := []byte(`FROM golang:1.24 AS builder
FROM alpine:3.20
COPY --from=builder /app /app
`)
	ex := NewDockerfileExtractor()
	res, err := ex.Extract(Input{FilePath: "Dockerfile", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var found bool
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "builder" && p.RelationType == entity.RelationReferences {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a references pending reference to the builder stage, got %+v", res.PendingReferences)
	}
}
