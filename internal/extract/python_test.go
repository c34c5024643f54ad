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

func TestPythonExtractor_SelfCallBindsToClass(t *testing.T) {
	src := []byte(`class Resolver:
    def resolve(self, name):
        return self.lookup(name)

    def lookup(self, name):
        return name
`)
	ex := NewPythonExtractor()
	res, err := ex.Extract(Input{FilePath: "resolver.py", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var found bool
	for _, p := range res.PendingReferences {
		if p.TargetQualifiedName == "Resolver.lookup" && p.ReceiverExpr == "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected self.lookup to resolve to Resolver.lookup immediately, got %+v", res.PendingReferences)
	}
}

func TestPythonExtractor_ClassAndMethodQualifiedNames(t *testing.T) {
	src := []byte(`class Service:
    """docstring"""
    def handle(self):
        pass
`)
	ex := NewPythonExtractor()
	res, err := ex.Extract(Input{FilePath: "pkg/services/service.py", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var class *entity.Class
	var method *entity.Method
	for _, e := range res.Entities {
		switch v := e.(type) {
		case *entity.Class:
			class = v
		case *entity.Method:
			method = v
		}
	}
	if class == nil || class.Hdr.QualifiedName != "service.Service" {
		t.Fatalf("expected qualified class name service.Service, got %+v", class)
	}
	if class.Hdr.Docstring != "docstring" {
		t.Errorf("expected docstring to be captured, got %q", class.Hdr.Docstring)
	}
	if method == nil || method.Hdr.QualifiedName != "service.Service.handle" {
		t.Fatalf("expected qualified method name, got %+v", method)
	}
}

func TestPythonExtractor_InitModuleCollapsesToPackage(t *testing.T) {
	src := []byte(`def boot():
    pass
`)
	ex := NewPythonExtractor()
	res, err := ex.Extract(Input{FilePath: "pkg/services/__init__.py", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var fn *entity.Function
	for _, e := range res.Entities {
		if f, ok := e.(*entity.Function); ok {
			fn = f
		}
	}
	if fn == nil || fn.Hdr.QualifiedName != "services.boot" {
		t.Fatalf("expected __init__.py to take the package name (services.boot), got %+v", fn)
	}
}

func TestPythonExtractor_FromImportWildcard(t *testing.T) {
	src := []byte(`from pkg.utils import *
`)
	ex := NewPythonExtractor()
	res, err := ex.Extract(Input{FilePath: "mod.py", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	var sawWildcard bool
	for _, e := range res.Entities {
		if imp, ok := e.(*entity.Import); ok && imp.IsWildcard {
			sawWildcard = true
		}
	}
	if !sawWildcard {
		t.Fatalf("expected a wildcard import entity, got %+v", res.Entities)
	}
}
