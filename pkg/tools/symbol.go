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

package tools

import (
	"context"
	"fmt"

	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
)

// FindSymbolArgs is find_symbol's input.
type FindSymbolArgs struct {
	QualifiedName string
	IncludeSource bool
}

// SymbolRecord is find_symbol's full-location result.
type SymbolRecord struct {
	ID            string
	RepositoryID  string
	FilePath      string
	QualifiedName string
	SimpleName    string
	EntityType    entity.EntityType
	LineStart     int
	LineEnd       int
	Visibility    entity.Visibility
	IsExported    bool
	Decorators    []string
	Signature     string
	Docstring     string
	BaseClasses   []string
	Parameters    []entity.Parameter
	ReturnType    string
	SourceText    string // only populated when args.IncludeSource
}

// FindSymbolResult is find_symbol's output; Symbol is nil when no
// match (exact or suffix) was found.
type FindSymbolResult struct {
	Symbol *SymbolRecord
}

// FindSymbol looks up one entity by qualified name, falling back to a
// suffix search when the exact lookup misses, same as the resolver's
// own two-tier lookup.
func FindSymbol(ctx context.Context, st *store.Store, args FindSymbolArgs) (*FindSymbolResult, error) {
	if args.QualifiedName == "" {
		return nil, fmt.Errorf("find_symbol: qualified_name is required")
	}

	e, err := st.GetEntityByQualifiedName(ctx, args.QualifiedName)
	if err == store.ErrNotFound {
		candidates, serr := st.GetEntitiesBySuffix(ctx, args.QualifiedName, 1)
		if serr != nil {
			return nil, fmt.Errorf("find_symbol: suffix search: %w", serr)
		}
		if len(candidates) == 0 {
			return &FindSymbolResult{}, nil
		}
		e = candidates[0]
	} else if err != nil {
		return nil, fmt.Errorf("find_symbol: %w", err)
	}

	file, err := st.GetFile(ctx, e.Header().FileID)
	filePath := ""
	if err == nil {
		filePath = file.Path
	}

	baseClasses, params, returnType := entityTypeFields(e)
	hdr := e.Header()
	rec := &SymbolRecord{
		ID:            hdr.ID,
		RepositoryID:  hdr.RepositoryID,
		FilePath:      filePath,
		QualifiedName: hdr.QualifiedName,
		SimpleName:    hdr.Name,
		EntityType:    hdr.EntityType,
		LineStart:     hdr.LineStart,
		LineEnd:       hdr.LineEnd,
		Visibility:    hdr.Visibility,
		IsExported:    hdr.IsExported,
		Decorators:    hdr.Decorators,
		Signature:     hdr.Signature,
		Docstring:     hdr.Docstring,
		BaseClasses:   baseClasses,
		Parameters:    params,
		ReturnType:    returnType,
	}
	if args.IncludeSource {
		rec.SourceText = hdr.SourceText
	}
	return &FindSymbolResult{Symbol: rec}, nil
}
