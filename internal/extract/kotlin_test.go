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

func TestKotlinExtractor_ClassAndMethod(t *testing.T) {
	src := []byte(`package com.example.svc

import com.example.util.Logger

class Resolver {
    fun resolve(name: String): String {
        return name
    }
}
`)
	ex := NewKotlinExtractor()
	res, err := ex.Extract(Input{FilePath: "Resolver.kt", RepositoryID: "repo1", Source: src})
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
	if class == nil || class.Hdr.QualifiedName != "com.example.svc.Resolver" {
		t.Fatalf("expected qualified class name com.example.svc.Resolver, got %+v", class)
	}
	if method == nil || method.ParentClass != "Resolver" {
		t.Fatalf("expected method parented to Resolver, got %+v", method)
	}
}

func TestKotlinExtractor_CompanionObjectAttributesToEnclosingClass(t *testing.T) {
	src := []byte(`class Factory {
    companion object {
        fun create(): Factory {
            return Factory()
        }
    }
}
`)
	ex := NewKotlinExtractor()
	res, err := ex.Extract(Input{FilePath: "Factory.kt", RepositoryID: "repo1", Source: src})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	var method *entity.Method
	for _, e := range res.Entities {
		if m, ok := e.(*entity.Method); ok && m.Hdr.Name == "create" {
			method = m
		}
	}
	if method == nil || method.ParentClass != "Factory" {
		t.Fatalf("expected companion member attributed to Factory, got %+v", method)
	}
}
