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
	"regexp"
	"strconv"
	"strings"

	"github.com/mrcis/mrcis/internal/entity"
)

// RubyExtractor extracts entities from Ruby source using regex/line
// scanning rather than tree-sitter, no Ruby grammar being bundled. It
// also recognizes the common structural DSLs: RSpec examples, Rake
// tasks, and Rails class-level macros.
type RubyExtractor struct{}

func NewRubyExtractor() *RubyExtractor { return &RubyExtractor{} }

func (e *RubyExtractor) Name() string { return "ruby (simplified)" }

func (e *RubyExtractor) Supports(path string) bool {
	if hasAnyExt(path, ".rb", ".rake", ".gemspec") {
		return true
	}
	name := baseName(path)
	return name == "Gemfile" || name == "Rakefile"
}

var (
	rbClassRe    = regexp.MustCompile(`^class\s+([\w:]+)(?:\s*<\s*([\w:]+))?`)
	rbModuleRe   = regexp.MustCompile(`^module\s+([\w:]+)`)
	rbDefRe      = regexp.MustCompile(`^def\s+(self\.)?([\w?!=\[\]]+|\[\])`)
	rbRequireRe  = regexp.MustCompile(`^require(?:_relative)?\s+['"]([\w./-]+)['"]`)
	rbTaskRe     = regexp.MustCompile(`^(?:desc\s+['"].*['"]\s*\n\s*)?task\s+:?([\w:]+)`)
	rbNamespaceRe = regexp.MustCompile(`^namespace\s+:([\w]+)`)
	rbRspecRe    = regexp.MustCompile(`^(describe|context|it|before|after)\s+['"]?([^'"]*)['"]?`)
	rbGemRe      = regexp.MustCompile(`^gem\s+['"]([\w./-]+)['"]`)
	// Rails class-level macros.
	rbMacroRe = regexp.MustCompile(`^(belongs_to|has_one|has_many|has_and_belongs_to_many|validates?|validates_\w+|before_\w+|after_\w+|around_\w+|scope|delegate)\s+:?([\w:]+)`)
)

func (e *RubyExtractor) Extract(in Input) (*ExtractionResult, error) {
	lines := splitLines(in.Source)
	result := &ExtractionResult{}
	module := moduleNameFromFile(in.FilePath, extOf(in.FilePath))
	var scopeStack []rbScope
	var namespaceStack []string

	for i, raw := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		parent := ""
		if len(scopeStack) > 0 {
			parent = scopeStack[len(scopeStack)-1].qualifiedName
		}

		switch {
		case rbClassRe.MatchString(trimmed):
			m := rbClassRe.FindStringSubmatch(trimmed)
			name := m[1]
			qname := entity.BuildQualifiedName(name, parent, module, "::")
			id := entity.NewID("class", in.FilePath, qname)
			c := &entity.Class{
				Hdr: entity.Header{
					ID:            id,
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeClass,
					Language:      "ruby",
					LineStart:     lineNum,
					Docstring:     leadingHashComment(lines, lineNum),
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
			}
			if m[2] != "" {
				c.BaseClasses = append(c.BaseClasses, m[2])
				ln := lineNum
				result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
					ID:                  entity.NewID("pref", id, "extends", m[2]),
					SourceEntityID:      id,
					SourceQualifiedName: qname,
					SourceRepositoryID:  in.RepositoryID,
					TargetQualifiedName: m[2],
					RelationType:        entity.RelationExtends,
					Status:              entity.PendingStatusPending,
					LineNumber:          &ln,
				})
			}
			result.Entities = append(result.Entities, c)
			scopeStack = append(scopeStack, rbScope{qualifiedName: name, kind: "class"})
		case rbModuleRe.MatchString(trimmed):
			m := rbModuleRe.FindStringSubmatch(trimmed)
			name := m[1]
			qname := entity.BuildQualifiedName(name, parent, module, "::")
			result.Entities = append(result.Entities, &entity.Module{
				Hdr: entity.Header{
					ID:            entity.NewID("module", in.FilePath, qname),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeModule,
					Language:      "ruby",
					LineStart:     lineNum,
					IsExported:    true,
				},
			})
			scopeStack = append(scopeStack, rbScope{qualifiedName: name, kind: "module"})
		case rbDefRe.MatchString(trimmed):
			m := rbDefRe.FindStringSubmatch(trimmed)
			isSelf := m[1] != ""
			name := m[2]
			qname := entity.BuildQualifiedName(name, parent, module, "::")
			endLine := rbFindEndKeyword(lines, i)
			hdr := entity.Header{
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          name,
				QualifiedName: qname,
				Language:      "ruby",
				LineStart:     lineNum,
				LineEnd:       endLine,
				Signature:     trimmed,
				Docstring:     leadingHashComment(lines, lineNum),
				SourceText:    strings.Join(lines[i:min(endLine, len(lines))], "\n"),
				Visibility:    entity.VisibilityPublic,
				IsExported:    !strings.HasSuffix(name, "!") && !strings.HasPrefix(name, "_"),
			}
			if parent != "" {
				hdr.EntityType = entity.TypeMethod
				hdr.ID = entity.NewID("method", in.FilePath, qname, strconv.Itoa(lineNum))
				result.Entities = append(result.Entities, &entity.Method{
					Hdr:           hdr,
					ParentClass:   parent,
					IsStatic:      isSelf,
					IsConstructor: name == "initialize",
				})
			} else {
				hdr.EntityType = entity.TypeFunction
				hdr.ID = entity.NewID("func", in.FilePath, qname, strconv.Itoa(lineNum))
				result.Entities = append(result.Entities, &entity.Function{Hdr: hdr})
			}
			scopeStack = append(scopeStack, rbScope{qualifiedName: parent, kind: "def", closesAtEnd: true})
		case rbRequireRe.MatchString(trimmed):
			m := rbRequireRe.FindStringSubmatch(trimmed)
			e.emitImport(in, module, lineNum, m[1], result)
		case rbGemRe.MatchString(trimmed):
			m := rbGemRe.FindStringSubmatch(trimmed)
			e.emitImport(in, module, lineNum, m[1], result)
		case rbNamespaceRe.MatchString(trimmed):
			m := rbNamespaceRe.FindStringSubmatch(trimmed)
			namespaceStack = append(namespaceStack, m[1])
			scopeStack = append(scopeStack, rbScope{qualifiedName: parent, kind: "namespace"})
		case rbTaskRe.MatchString(trimmed):
			m := rbTaskRe.FindStringSubmatch(trimmed)
			name := m[1]
			ns := strings.Join(namespaceStack, ":")
			qname := name
			if ns != "" {
				qname = ns + ":" + name
			}
			result.Entities = append(result.Entities, &entity.Task{
				Hdr: entity.Header{
					ID:            entity.NewID("task", in.FilePath, qname, strconv.Itoa(lineNum)),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeTask,
					Language:      "ruby",
					LineStart:     lineNum,
					SourceText:    trimmed,
					IsExported:    true,
					Visibility:    entity.VisibilityPublic,
				},
				Namespace: ns,
			})
		case rbRspecRe.MatchString(trimmed) && parent == "":
			// Top-level RSpec blocks double as describe/context scopes so
			// nested `it` examples get a readable qualified name.
			m := rbRspecRe.FindStringSubmatch(trimmed)
			if m[1] == "describe" || m[1] == "context" {
				scopeStack = append(scopeStack, rbScope{qualifiedName: strings.TrimSpace(m[2]), kind: "rspec"})
			}
		case rbMacroRe.MatchString(trimmed) && parent != "":
			m := rbMacroRe.FindStringSubmatch(trimmed)
			ln := lineNum
			sourceID := entity.NewID("macro", in.FilePath, parent, m[1], m[2], strconv.Itoa(lineNum))
			result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
				ID:                  entity.NewID("pref", sourceID, m[1], m[2]),
				SourceEntityID:      sourceID,
				SourceQualifiedName: entity.BuildQualifiedName(parent, "", module, "::"),
				SourceRepositoryID:  in.RepositoryID,
				TargetQualifiedName: m[2],
				RelationType:        rubyMacroRelation(m[1]),
				Status:              entity.PendingStatusPending,
				LineNumber:          &ln,
				ContextSnippet:      trimmed,
			})
		}

		if strings.HasSuffix(strings.TrimRight(trimmed, " "), "end") || trimmed == "end" {
			if len(scopeStack) > 0 {
				scopeStack = scopeStack[:len(scopeStack)-1]
			}
		}
	}

	return result, nil
}

type rbScope struct {
	qualifiedName string
	kind          string
	closesAtEnd   bool
}

func rubyMacroRelation(macro string) entity.RelationType {
	switch {
	case strings.HasPrefix(macro, "belongs_to"), strings.HasPrefix(macro, "has_"):
		return entity.RelationReferences
	default:
		return entity.RelationCalls
	}
}

func (e *RubyExtractor) emitImport(in Input, module string, line int, path string, result *ExtractionResult) {
	qname := entity.BuildQualifiedName(path, "", module, "::")
	imp := &entity.Import{
		Hdr: entity.Header{
			ID:            entity.NewID("import", in.FilePath, path, strconv.Itoa(line)),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          path,
			QualifiedName: qname,
			EntityType:    entity.TypeImport,
			Language:      "ruby",
			LineStart:     line,
			LineEnd:       line,
		},
		SourceModule: path,
		IsRelative:   strings.HasPrefix(path, "."),
	}
	result.Entities = append(result.Entities, imp)
	ln := line
	result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
		ID:                  entity.NewID("pref", imp.Hdr.ID, "imports", path),
		SourceEntityID:      imp.Hdr.ID,
		SourceQualifiedName: qname,
		SourceRepositoryID:  in.RepositoryID,
		TargetQualifiedName: path,
		RelationType:        entity.RelationImports,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
	})
}

// rbFindEndKeyword finds the line of the `end` closing the def opened at
// lines[startIdx], tracking nested do/if/def/class/module/case blocks.
func rbFindEndKeyword(lines []string, startIdx int) int {
	depth := 1
	opensBlock := regexp.MustCompile(`\b(do|if|unless|case|def|class|module|begin|while|until)\b(?:[^#]*$)`)
	for i := startIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if opensBlock.MatchString(trimmed) && !strings.HasSuffix(trimmed, "end") {
			depth++
		}
		if trimmed == "end" || strings.HasSuffix(trimmed, " end") {
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(lines)
}
