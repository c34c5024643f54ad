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

// KotlinExtractor extracts entities from Kotlin source using regex/line
// scanning rather than tree-sitter, no Kotlin grammar being bundled.
type KotlinExtractor struct{}

func NewKotlinExtractor() *KotlinExtractor { return &KotlinExtractor{} }

func (e *KotlinExtractor) Name() string { return "kotlin (simplified)" }

func (e *KotlinExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".kt", ".kts")
}

var (
	ktPackageRe = regexp.MustCompile(`^package\s+([\w.]+)`)
	ktImportRe  = regexp.MustCompile(`^import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
	ktClassRe   = regexp.MustCompile(`^(?:(?:public|private|internal|protected|abstract|open|sealed|data|enum|annotation|inner)\s+)*class\s+(\w+)`)
	ktObjectRe  = regexp.MustCompile(`^(?:(?:public|private|internal)\s+)*(companion\s+)?object\s+(\w*)`)
	ktInterfRe  = regexp.MustCompile(`^(?:(?:public|private|internal)\s+)*interface\s+(\w+)`)
	ktFunRe     = regexp.MustCompile(`^(?:(?:public|private|internal|protected|suspend|inline|override|open|abstract)\s+)*fun\s+(?:<[^>]*>\s+)?(?:([\w.<>?]+)\.)?(\w+)\s*\(`)
	ktExtendsRe = regexp.MustCompile(`:\s*([\w.]+)`)
)

func (e *KotlinExtractor) Extract(in Input) (*ExtractionResult, error) {
	lines := splitLines(in.Source)
	result := &ExtractionResult{}
	module := ""
	var classStack []ktScope
	braceDepth := 0

	for i, raw := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}

		if m := ktPackageRe.FindStringSubmatch(trimmed); m != nil && module == "" {
			module = m[1]
			continue
		}
		if m := ktImportRe.FindStringSubmatch(trimmed); m != nil {
			e.emitImport(in, module, lineNum, m[1], m[2], result)
			continue
		}

		parent := ""
		if len(classStack) > 0 {
			parent = classStack[len(classStack)-1].name
		}

		switch {
		case ktClassRe.MatchString(trimmed):
			m := ktClassRe.FindStringSubmatch(trimmed)
			name := m[1]
			qname := entity.BuildQualifiedName(name, parent, module, ".")
			id := entity.NewID("class", in.FilePath, qname)
			c := &entity.Class{
				Hdr: entity.Header{
					ID:            id,
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeClass,
					Language:      "kotlin",
					LineStart:     lineNum,
					Docstring:     leadingSlashDocComment(lines, lineNum, "///", "//"),
					Visibility:    ktVisibility(trimmed),
					IsExported:    !strings.Contains(trimmed, "private"),
				},
				IsAbstract: strings.Contains(trimmed, "abstract"),
			}
			if em := ktExtendsRe.FindStringSubmatch(trimmed); em != nil {
				base := strings.TrimSuffix(strings.Fields(em[1])[0], "(")
				c.BaseClasses = append(c.BaseClasses, base)
				ln := lineNum
				result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
					ID:                  entity.NewID("pref", id, "extends", base),
					SourceEntityID:      id,
					SourceQualifiedName: qname,
					SourceRepositoryID:  in.RepositoryID,
					TargetQualifiedName: base,
					RelationType:        entity.RelationExtends,
					Status:              entity.PendingStatusPending,
					LineNumber:          &ln,
				})
			}
			result.Entities = append(result.Entities, c)
			classStack = append(classStack, ktScope{name: name, depth: braceDepth})
		case ktInterfRe.MatchString(trimmed):
			m := ktInterfRe.FindStringSubmatch(trimmed)
			name := m[1]
			qname := entity.BuildQualifiedName(name, parent, module, ".")
			result.Entities = append(result.Entities, &entity.Interface{
				Hdr: entity.Header{
					ID:            entity.NewID("iface", in.FilePath, qname),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeInterface,
					Language:      "kotlin",
					LineStart:     lineNum,
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
			})
			classStack = append(classStack, ktScope{name: name, depth: braceDepth})
		case ktObjectRe.MatchString(trimmed):
			// Companion objects: best-effort — members are attributed to the
			// enclosing class itself rather than modeled as a nested scope,
			// since resolution only cares about the class's qualified name.
			m := ktObjectRe.FindStringSubmatch(trimmed)
			objName := m[2]
			if m[1] != "" || objName == "" {
				classStack = append(classStack, ktScope{name: parent, depth: braceDepth})
			} else {
				qname := entity.BuildQualifiedName(objName, parent, module, ".")
				result.Entities = append(result.Entities, &entity.Class{
					Hdr: entity.Header{
						ID:            entity.NewID("object", in.FilePath, qname),
						RepositoryID:  in.RepositoryID,
						FileID:        in.FileID,
						Name:          objName,
						QualifiedName: qname,
						EntityType:    entity.TypeClass,
						Language:      "kotlin",
						LineStart:     lineNum,
						Visibility:    entity.VisibilityPublic,
						IsExported:    true,
					},
				})
				classStack = append(classStack, ktScope{name: objName, depth: braceDepth})
			}
		case ktFunRe.MatchString(trimmed):
			m := ktFunRe.FindStringSubmatch(trimmed)
			receiverType, name := m[1], m[2]
			effectiveParent := parent
			if receiverType != "" {
				effectiveParent = receiverType // extension function
			}
			qname := entity.BuildQualifiedName(name, effectiveParent, module, ".")
			endLine := findBraceBlockEnd(lines, i)
			hdr := entity.Header{
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          name,
				QualifiedName: qname,
				Language:      "kotlin",
				LineStart:     lineNum,
				LineEnd:       endLine,
				Signature:     strings.TrimSuffix(strings.SplitN(trimmed, "{", 2)[0], " "),
				Docstring:     leadingSlashDocComment(lines, lineNum, "///", "//"),
				SourceText:    strings.Join(lines[i:min(endLine, len(lines))], "\n"),
				Visibility:    ktVisibility(trimmed),
				IsExported:    !strings.Contains(trimmed, "private"),
			}
			if effectiveParent != "" {
				hdr.EntityType = entity.TypeMethod
				hdr.ID = entity.NewID("method", in.FilePath, qname, strconv.Itoa(lineNum))
				result.Entities = append(result.Entities, &entity.Method{
					Hdr:         hdr,
					ParentClass: effectiveParent,
					IsStatic:    strings.Contains(trimmed, "companion"),
					IsAsync:     strings.Contains(trimmed, "suspend"),
				})
			} else {
				hdr.EntityType = entity.TypeFunction
				hdr.ID = entity.NewID("func", in.FilePath, qname, strconv.Itoa(lineNum))
				result.Entities = append(result.Entities, &entity.Function{
					Hdr:     hdr,
					IsAsync: strings.Contains(trimmed, "suspend"),
				})
			}
		}

		braceDepth += strings.Count(raw, "{") - strings.Count(raw, "}")
		for len(classStack) > 0 && braceDepth <= classStack[len(classStack)-1].depth {
			classStack = classStack[:len(classStack)-1]
		}
	}

	return result, nil
}

type ktScope struct {
	name  string
	depth int
}

func (e *KotlinExtractor) emitImport(in Input, module string, line int, path, alias string, result *ExtractionResult) {
	qname := entity.BuildQualifiedName(path, "", module, ".")
	imp := &entity.Import{
		Hdr: entity.Header{
			ID:            entity.NewID("import", in.FilePath, path, alias),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          path,
			QualifiedName: qname,
			EntityType:    entity.TypeImport,
			Language:      "kotlin",
			LineStart:     line,
			LineEnd:       line,
		},
		SourceModule: path,
		Alias:        alias,
		IsWildcard:   strings.HasSuffix(path, "*"),
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

func ktVisibility(line string) entity.Visibility {
	switch {
	case strings.Contains(line, "private"):
		return entity.VisibilityPrivate
	case strings.Contains(line, "protected"):
		return entity.VisibilityProtected
	default:
		return entity.VisibilityPublic
	}
}

// findBraceBlockEnd finds the 1-indexed line on which the brace block
// opened at lines[startIdx] closes.
func findBraceBlockEnd(lines []string, startIdx int) int {
	depth := 0
	started := false
	for i := startIdx; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if !started && strings.Contains(lines[i], "{") {
			started = true
		}
		if started && depth == 0 {
			return i + 1
		}
	}
	if !started {
		return startIdx + 1
	}
	return len(lines)
}
