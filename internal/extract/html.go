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
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/mrcis/mrcis/internal/entity"
)

// HTMLExtractor tokenizes templates and pages. Element ids, CSS classes,
// script/link sources, anchor hrefs, and data-* attributes each become
// Variable entities under namespaced qualified names (id:, class:,
// script:, link:, data:), and non-absolute script/link/img/anchor
// targets additionally become references so a changed asset shows up in
// the graph of whatever page embeds it.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (e *HTMLExtractor) Name() string { return "html" }

func (e *HTMLExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".html", ".htm")
}

func (e *HTMLExtractor) Extract(in Input) (*ExtractionResult, error) {
	result := &ExtractionResult{}
	z := html.NewTokenizer(bytes.NewReader(in.Source))
	lineOf := byteLineIndexer(in.Source)
	docID := entity.NewID("doc", in.FilePath)
	offset := 0
	seen := map[string]bool{}

	// The document itself anchors the outgoing script/link/img/anchor
	// references, so promoted relations always have a real source row.
	result.Entities = append(result.Entities, &entity.Module{
		Hdr: entity.Header{
			ID:            docID,
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          baseName(in.FilePath),
			QualifiedName: in.FilePath,
			EntityType:    entity.TypeModule,
			Language:      "html",
			LineStart:     1,
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
	})

	emitVar := func(namespace, value string, line int) {
		qname := namespace + ":" + value
		if value == "" || seen[qname] {
			return
		}
		seen[qname] = true
		result.Entities = append(result.Entities, &entity.Variable{
			Hdr: entity.Header{
				ID:            entity.NewID("attr", in.FilePath, qname),
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          value,
				QualifiedName: qname,
				EntityType:    entity.TypeVariable,
				Language:      "html",
				LineStart:     line,
				LineEnd:       line,
				Visibility:    entity.VisibilityPublic,
				IsExported:    true,
			},
		})
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			raw := z.Raw()
			offset += len(raw)
			continue
		}
		name, _ := z.TagName()
		attrs := map[string]string{}
		for {
			key, val, more := z.TagAttr()
			attrs[string(key)] = string(val)
			if !more {
				break
			}
		}
		raw := z.Raw()
		line := lineOf(offset)
		offset += len(raw)

		tag := string(name)
		if id := attrs["id"]; id != "" {
			emitVar("id", id, line)
		}
		for _, class := range strings.Fields(attrs["class"]) {
			emitVar("class", class, line)
		}
		for key := range attrs {
			if strings.HasPrefix(key, "data-") {
				emitVar("data", strings.TrimPrefix(key, "data-"), line)
			}
		}

		var target, relKind string
		switch tag {
		case "script":
			emitVar("script", attrs["src"], line)
			target, relKind = attrs["src"], "imports"
		case "link":
			emitVar("link", attrs["href"], line)
			target, relKind = attrs["href"], "imports"
		case "a":
			emitVar("link", attrs["href"], line)
			target, relKind = attrs["href"], "references"
		case "img":
			target, relKind = attrs["src"], "references"
		default:
			continue
		}
		if target == "" || strings.Contains(target, "://") || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "mailto:") {
			continue
		}
		relType := entity.RelationImports
		if relKind == "references" {
			relType = entity.RelationReferences
		}
		ln := line
		result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
			ID:                  entity.NewID("pref", docID, tag, target, strconv.Itoa(line)),
			SourceEntityID:      docID,
			SourceQualifiedName: in.FilePath,
			SourceRepositoryID:  in.RepositoryID,
			TargetQualifiedName: target,
			RelationType:        relType,
			Status:              entity.PendingStatusPending,
			LineNumber:          &ln,
		})
	}

	return result, nil
}

// byteLineIndexer returns a fast byte-offset -> 1-indexed line function.
func byteLineIndexer(src []byte) func(int) int {
	offsets := []int{0}
	for i, b := range src {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return func(offset int) int {
		lo, hi := 0, len(offsets)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if offsets[mid] <= offset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}
