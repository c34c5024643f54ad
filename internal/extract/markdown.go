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
	"strconv"
	"strings"

	"github.com/russross/blackfriday/v2"

	"github.com/mrcis/mrcis/internal/entity"
)

// MarkdownExtractor models each heading as a section entity whose
// qualified name is the dotted path of its ancestor headings, each
// fenced code block as a Variable tagged with the fence language, and
// each link (inline, reference, image) as an Import, so design docs and
// READMEs participate in the same graph as code.
type MarkdownExtractor struct{}

func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

func (e *MarkdownExtractor) Name() string { return "markdown" }

func (e *MarkdownExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".md", ".markdown")
}

func (e *MarkdownExtractor) Extract(in Input) (*ExtractionResult, error) {
	result := &ExtractionResult{}
	parser := blackfriday.New(blackfriday.WithExtensions(blackfriday.CommonExtensions))
	root := parser.Parse(in.Source)

	var headingStack []string
	codeBlockIdx := 0
	lineOf := lineIndexer(in.Source)

	root.Walk(func(node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if !entering {
			return blackfriday.GoToNext
		}
		switch node.Type {
		case blackfriday.Heading:
			text := strings.TrimSpace(string(collectText(node)))
			level := node.HeadingData.Level
			for len(headingStack) >= level {
				headingStack = headingStack[:len(headingStack)-1]
			}
			headingStack = append(headingStack, text)
			qname := strings.Join(headingStack, ".")
			line := lineOf(node)
			result.Entities = append(result.Entities, &entity.Module{
				Hdr: entity.Header{
					ID:            entity.NewID("section", in.FilePath, qname),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          text,
					QualifiedName: qname,
					EntityType:    entity.TypeModule,
					Language:      "markdown",
					LineStart:     line,
					IsExported:    true,
					Visibility:    entity.VisibilityPublic,
				},
			})
		case blackfriday.CodeBlock:
			if !node.CodeBlockData.IsFenced {
				return blackfriday.GoToNext
			}
			codeBlockIdx++
			name := "code_block_" + strconv.Itoa(codeBlockIdx)
			qname := name
			if len(headingStack) > 0 {
				qname = strings.Join(headingStack, ".") + "." + name
			}
			line := lineOf(node)
			hdr := entity.Header{
				ID:            entity.NewID("code", in.FilePath, qname),
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          name,
				QualifiedName: qname,
				EntityType:    entity.TypeVariable,
				Language:      "markdown",
				LineStart:     line,
				SourceText:    string(node.Literal),
				Visibility:    entity.VisibilityPublic,
				IsExported:    true,
			}
			if tag := strings.TrimSpace(string(node.CodeBlockData.Info)); tag != "" {
				hdr.Decorators = []string{tag}
			}
			result.Entities = append(result.Entities, &entity.Variable{Hdr: hdr})
		case blackfriday.Link, blackfriday.Image:
			e.extractLink(node, in, headingStack, lineOf, result)
		}
		return blackfriday.GoToNext
	})

	return result, nil
}

func (e *MarkdownExtractor) extractLink(node *blackfriday.Node, in Input, headingStack []string, lineOf func(*blackfriday.Node) int, result *ExtractionResult) {
	dest := string(node.LinkData.Destination)
	if dest == "" || strings.HasPrefix(dest, "#") {
		return
	}
	relative := !isAbsoluteURL(dest)
	line := lineOf(node)
	name := entity.SimpleName(strings.TrimSuffix(dest, "/"), "/")
	importID := entity.NewID("import", in.FilePath, dest, strconv.Itoa(line))

	result.Entities = append(result.Entities, &entity.Import{
		Hdr: entity.Header{
			ID:            importID,
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: dest,
			EntityType:    entity.TypeImport,
			Language:      "markdown",
			LineStart:     line,
			LineEnd:       line,
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
		SourceModule: dest,
		IsRelative:   relative,
	})

	// Only relative links can resolve to something in the corpus;
	// absolute URLs would sit in the pending queue until max_attempts.
	if !relative {
		return
	}
	ln := line
	result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
		ID:                  entity.NewID("pref", importID, "imports", dest, strconv.Itoa(line)),
		SourceEntityID:      importID,
		SourceQualifiedName: strings.Join(headingStack, "."),
		SourceRepositoryID:  in.RepositoryID,
		TargetQualifiedName: dest,
		RelationType:        entity.RelationImports,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
	})
}

func isAbsoluteURL(dest string) bool {
	return strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:")
}

func collectText(node *blackfriday.Node) []byte {
	var out []byte
	child := node.FirstChild
	for child != nil {
		if child.Literal != nil {
			out = append(out, child.Literal...)
		}
		out = append(out, collectText(child)...)
		child = child.Next
	}
	return out
}

// lineIndexer returns a function mapping a blackfriday node's literal byte
// offset back to a 1-indexed source line, since the AST does not carry
// positions directly.
func lineIndexer(src []byte) func(*blackfriday.Node) int {
	offsets := make([]int, 0, 64)
	offsets = append(offsets, 0)
	for i, b := range src {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return func(node *blackfriday.Node) int {
		text := node.Literal
		if len(text) == 0 {
			text = collectText(node)
		}
		if len(text) == 0 {
			return 1
		}
		idx := indexBytes(src, text)
		if idx < 0 {
			return 1
		}
		lo, hi := 0, len(offsets)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if offsets[mid] <= idx {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo + 1
	}
}

func indexBytes(haystack, needle []byte) int {
	if len(needle) == 0 {
		return -1
	}
	return strings.Index(string(haystack), string(needle))
}
