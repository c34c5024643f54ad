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

import "testing"

func TestYAMLExtractor_NestedKeysAndListIndices(t *testing.T) {
	src := []byte(`services:
  web:
    image: nginx:latest
    ports:
      - "80:80"
      - "443:443"
`)
	ex := NewYAMLExtractor()
	res, err := ex.Extract(Input{FilePath: "docker-compose.yaml", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	qnames := map[string]bool{}
	for _, e := range res.Entities {
		qnames[e.Header().QualifiedName] = true
	}
	for _, want := range []string{
		"docker-compose.services",
		"docker-compose.services.web",
		"docker-compose.services.web.image",
		"docker-compose.services.web.ports",
		"docker-compose.services.web.ports[0]",
		"docker-compose.services.web.ports[1]",
	} {
		if !qnames[want] {
			t.Errorf("missing variable %q, got %v", want, qnames)
		}
	}

	var foundImage bool
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "nginx:latest" {
			foundImage = true
		}
	}
	if !foundImage {
		t.Error("expected a references pending reference for the image value")
	}
}

func TestYAMLExtractor_DepthLimit(t *testing.T) {
	src := []byte(`a:
  b:
    c:
      d: 1
`)
	ex := &YAMLExtractor{MaxDepth: 2}
	res, err := ex.Extract(Input{FilePath: "deep.yml", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	for _, e := range res.Entities {
		if e.Header().Name == "c" || e.Header().Name == "d" {
			t.Errorf("key %q is below the depth limit and should be skipped", e.Header().Name)
		}
	}
}

func TestYAMLExtractor_MalformedAndEmptyDocuments(t *testing.T) {
	ex := NewYAMLExtractor()

	res, err := ex.Extract(Input{FilePath: "bad.yaml", RepositoryID: "repo1", Source: []byte("a: [unclosed")})
	if err != nil {
		t.Fatalf("malformed document must not be an error: %v", err)
	}
	if len(res.ParseErrors) != 1 {
		t.Errorf("expected exactly one parse error, got %d", len(res.ParseErrors))
	}

	res, err = ex.Extract(Input{FilePath: "empty.yaml", RepositoryID: "repo1", Source: nil})
	if err != nil {
		t.Fatalf("empty document must not be an error: %v", err)
	}
	if len(res.Entities) != 0 || len(res.ParseErrors) != 0 {
		t.Errorf("empty document: want zero entities and zero errors, got %d/%d", len(res.Entities), len(res.ParseErrors))
	}
}
