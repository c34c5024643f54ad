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

// Package extract defines the language-extractor contract and hosts
// one file per supported language. Extractors are pure
// functions of a file's bytes: no I/O beyond the provided source, no
// shared mutable state between calls.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/mrcis/mrcis/internal/entity"
)

// ParseErrorKind distinguishes a hard syntax error from a merely missing
// (but tolerated) node, matching tree-sitter's own error/missing nodes.
type ParseErrorKind string

const (
	ParseErrorKindError   ParseErrorKind = "error"
	ParseErrorKindMissing ParseErrorKind = "missing"
)

// ParseError is one (line, column, kind) record collected from the parsed tree.
type ParseError struct {
	Line   int
	Column int
	Kind   ParseErrorKind
}

// ExtractionResult is the output of a single file's extraction.
type ExtractionResult struct {
	Entities          []entity.Entity
	ResolvedRelations []entity.Relation
	PendingReferences []entity.PendingReference
	ParseErrors       []ParseError
}

// Input is the extractor's sole argument: a file identity plus its bytes.
type Input struct {
	FilePath     string // repository-relative, POSIX-normalized
	FileID       string
	RepositoryID string
	Source       []byte
}

// Extractor is implemented once per supported language.
type Extractor interface {
	// Name identifies the extractor for logging/metrics.
	Name() string

	// Supports reports whether this extractor should handle the given
	// repository-relative path, by extension and/or filename predicate.
	Supports(path string) bool

	// Extract converts a parsed file into a normalized extraction result.
	Extract(in Input) (*ExtractionResult, error)
}

// baseName returns the final path segment, tolerant of both separators.
func baseName(path string) string {
	return filepath.Base(filepath.ToSlash(path))
}

// hasAnyExt reports whether path ends in one of exts (each including the dot).
func hasAnyExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
