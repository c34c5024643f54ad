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

// Package tools implements the external query tool surface: six plain
// Go functions, each taking a context, the *store.Store, any extra
// dependency the tool needs (embedding client, writer flag, discovery
// options) and an args struct, and returning (ResultT, error); callable
// directly from cmd/mrcis or dispatched from an MCP stdio server.
// Every tool is read-only except reindex_repository.
package tools

import "github.com/mrcis/mrcis/internal/entity"

// clamp bounds limit into [1, max], defaulting to def when limit <= 0
// (search_code and find_symbol both take a caller limit/k).
func clamp(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// entityTypeFields renders the per-variant fields of an entity that
// find_symbol surfaces alongside the common header: base classes for
// classes and interfaces, parameters and return type for functions.
// Methods carry neither in their variant, so they get none.
func entityTypeFields(e entity.Entity) (baseClasses []string, parameters []entity.Parameter, returnType string) {
	switch v := e.Variant().(type) {
	case *entity.Class:
		return v.BaseClasses, nil, ""
	case *entity.Interface:
		return v.BaseClasses, nil, ""
	case *entity.Method:
		return nil, nil, ""
	case *entity.Function:
		return nil, v.Parameters, v.ReturnType
	default:
		return nil, nil, ""
	}
}
