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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/mrcis/mrcis/internal/entity"
)

// JavaExtractor extracts entities and relations from Java source.
type JavaExtractor struct{}

func NewJavaExtractor() *JavaExtractor { return &JavaExtractor{} }

func (e *JavaExtractor) Name() string { return "java" }

func (e *JavaExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".java")
}

func (e *JavaExtractor) Extract(in Input) (*ExtractionResult, error) {
	tree, parseErrors, err := parseSource(java.GetLanguage(), in.Source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	lines := splitLines(in.Source)
	result := &ExtractionResult{ParseErrors: parseErrors}
	module := e.packageName(root, in.Source)

	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		switch n.Type() {
		case "class_declaration":
			e.extractClass(n, in, module, "", lines, result)
		case "interface_declaration":
			e.extractInterface(n, in, module, lines, result)
		case "import_declaration":
			e.extractImport(n, in, module, result)
		}
	}
	return result, nil
}

func (e *JavaExtractor) packageName(root *sitter.Node, src []byte) string {
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		if n.Type() == "package_declaration" {
			for j := 0; j < int(n.ChildCount()); j++ {
				c := n.Child(j)
				if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
					return nodeText(c, src)
				}
			}
		}
	}
	return ""
}

func (e *JavaExtractor) extractClass(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	modifiers := javaModifiersText(n, in.Source)

	c := &entity.Class{
		Hdr: entity.Header{
			ID:            entity.NewID("class", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeClass,
			Language:      "java",
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    javaVisibility(modifiers),
			IsExported:    !strings.Contains(modifiers, "private"),
		},
		IsAbstract: strings.Contains(modifiers, "abstract"),
	}

	if super := n.ChildByFieldName("superclass"); super != nil {
		if t := firstTypeIdentifier(super, in.Source); t != "" {
			c.BaseClasses = append(c.BaseClasses, t)
			e.addHeritageRef(c.Hdr.ID, qname, in, entity.RelationExtends, t, startLine, result)
		}
	}
	if interfaces := n.ChildByFieldName("interfaces"); interfaces != nil {
		walkNodes(interfaces, func(node *sitter.Node) bool {
			if node.Type() == "type_identifier" {
				t := nodeText(node, in.Source)
				c.BaseClasses = append(c.BaseClasses, t)
				e.addHeritageRef(c.Hdr.ID, qname, in, entity.RelationImplements, t, startLine, result)
			}
			return true
		})
	}

	result.Entities = append(result.Entities, c)
	if body := n.ChildByFieldName("body"); body != nil {
		e.walkClassBody(body, in, module, name, lines, result)
	}
}

func (e *JavaExtractor) addHeritageRef(sourceID, qname string, in Input, relType entity.RelationType, target string, line int, result *ExtractionResult) {
	ln := line
	result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
		ID:                  entity.NewID("pref", sourceID, string(relType), target),
		SourceEntityID:      sourceID,
		SourceQualifiedName: qname,
		SourceRepositoryID:  in.RepositoryID,
		TargetQualifiedName: target,
		RelationType:        relType,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
	})
}

func (e *JavaExtractor) extractInterface(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, "", module, ".")
	startLine, endLine := nodeLines(n)
	iface := &entity.Interface{
		Hdr: entity.Header{
			ID:            entity.NewID("iface", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeInterface,
			Language:      "java",
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
	}
	if ext := n.ChildByFieldName("extends"); ext != nil {
		walkNodes(ext, func(node *sitter.Node) bool {
			if node.Type() == "type_identifier" {
				t := nodeText(node, in.Source)
				iface.BaseClasses = append(iface.BaseClasses, t)
				e.addHeritageRef(iface.Hdr.ID, qname, in, entity.RelationExtends, t, startLine, result)
			}
			return true
		})
	}
	result.Entities = append(result.Entities, iface)
	if body := n.ChildByFieldName("body"); body != nil {
		e.walkClassBody(body, in, module, name, lines, result)
	}
}

func (e *JavaExtractor) walkClassBody(body *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	for i := 0; i < int(body.ChildCount()); i++ {
		n := body.Child(i)
		switch n.Type() {
		case "method_declaration", "constructor_declaration":
			e.extractMethod(n, in, module, parent, lines, result)
		case "class_declaration":
			e.extractClass(n, in, module, parent, lines, result)
		case "interface_declaration":
			e.extractInterface(n, in, module, lines, result)
		case "field_declaration":
			e.extractField(n, in, module, parent, result)
		}
	}
}

func (e *JavaExtractor) extractMethod(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	modifiers := javaModifiersText(n, in.Source)
	m := &entity.Method{
		Hdr: entity.Header{
			ID:            entity.NewID("method", in.FilePath, qname, nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source)),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeMethod,
			Language:      "java",
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    javaVisibility(modifiers),
			IsExported:    !strings.Contains(modifiers, "private"),
		},
		ParentClass:   parent,
		IsConstructor: n.Type() == "constructor_declaration",
		IsStatic:      strings.Contains(modifiers, "static"),
	}
	calls := e.extractCalls(n, in.Source, parent)
	result.Entities = append(result.Entities, m)
	e.emitCallReferences(m.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func (e *JavaExtractor) extractField(n *sitter.Node, in Input, module, parent string, result *ExtractionResult) {
	modifiers := javaModifiersText(n, in.Source)
	if !strings.Contains(modifiers, "static") || !strings.Contains(modifiers, "final") {
		return
	}
	declarator := n.ChildByFieldName("declarator")
	if declarator == nil {
		return
	}
	nameNode := declarator.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	result.Entities = append(result.Entities, &entity.Variable{
		Hdr: entity.Header{
			ID:            entity.NewID("field", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeVariable,
			Language:      "java",
			LineStart:     startLine,
			LineEnd:       endLine,
			SourceText:    nodeText(n, in.Source),
			Visibility:    javaVisibility(modifiers),
			IsExported:    !strings.Contains(modifiers, "private"),
		},
		IsConstant: true,
	})
}

func (e *JavaExtractor) extractImport(n *sitter.Node, in Input, module string, result *ExtractionResult) {
	text := nodeText(n, in.Source)
	isStatic := strings.Contains(text, "static")
	isWildcard := strings.Contains(text, ".*")
	var pathNode *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
			pathNode = c
		}
	}
	if pathNode == nil {
		return
	}
	sourceModule := nodeText(pathNode, in.Source)
	startLine, _ := nodeLines(n)
	qname := entity.BuildQualifiedName(sourceModule, "", module, ".")
	imp := &entity.Import{
		Hdr: entity.Header{
			ID:            entity.NewID("import", in.FilePath, sourceModule),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          sourceModule,
			QualifiedName: qname,
			EntityType:    entity.TypeImport,
			Language:      "java",
			LineStart:     startLine,
			LineEnd:       startLine,
		},
		SourceModule: sourceModule,
		IsWildcard:   isWildcard,
	}
	_ = isStatic
	result.Entities = append(result.Entities, imp)
	ln := startLine
	result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
		ID:                  entity.NewID("pref", imp.Hdr.ID, "imports", sourceModule),
		SourceEntityID:      imp.Hdr.ID,
		SourceQualifiedName: qname,
		SourceRepositoryID:  in.RepositoryID,
		TargetQualifiedName: sourceModule,
		RelationType:        entity.RelationImports,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
	})
}

func (e *JavaExtractor) extractCalls(body *sitter.Node, src []byte, enclosingClass string) []callBinding {
	var calls []callBinding
	walkNodes(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "method_invocation":
			nameNode := n.ChildByFieldName("name")
			objectNode := n.ChildByFieldName("object")
			if nameNode == nil {
				return true
			}
			line, _ := nodeLines(n)
			snippet := nodeText(n, src)
			simple := nodeText(nameNode, src)
			if objectNode == nil {
				calls = append(calls, callBinding{Callee: simple, Line: line, Snippet: snippet})
				return true
			}
			receiver := nodeText(objectNode, src)
			if (receiver == "this" || receiver == "super") && enclosingClass != "" {
				calls = append(calls, callBinding{Callee: enclosingClass + "." + simple, Line: line, Snippet: snippet})
				return true
			}
			calls = append(calls, callBinding{Callee: receiver + "." + simple, Receiver: receiver, Line: line, Snippet: snippet})
		case "object_creation_expression":
			typeNode := n.ChildByFieldName("type")
			if typeNode == nil {
				return true
			}
			line, _ := nodeLines(n)
			calls = append(calls, callBinding{
				Callee:       nodeText(typeNode, src),
				Line:         line,
				Snippet:      nodeText(n, src),
				Instantiates: true,
			})
		}
		return true
	})
	return dedupeCalls(calls)
}

func (e *JavaExtractor) emitCallReferences(sourceID, sourceQName, repoID string, calls []callBinding, result *ExtractionResult) {
	for _, c := range calls {
		relType := entity.RelationCalls
		if c.Instantiates {
			relType = entity.RelationInstantiates
		}
		result.PendingReferences = append(result.PendingReferences,
			newPendingReference(sourceID, sourceQName, repoID, c.Callee, relType, c.Line, c.Snippet, c.Receiver))
	}
}

func javaModifiersText(n *sitter.Node, src []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "modifiers" {
			return nodeText(c, src)
		}
	}
	return ""
}

func javaVisibility(modifiers string) entity.Visibility {
	switch {
	case strings.Contains(modifiers, "private"):
		return entity.VisibilityPrivate
	case strings.Contains(modifiers, "protected"):
		return entity.VisibilityProtected
	default:
		return entity.VisibilityPublic
	}
}

func firstTypeIdentifier(n *sitter.Node, src []byte) string {
	var found string
	walkNodes(n, func(node *sitter.Node) bool {
		if found != "" {
			return false
		}
		if node.Type() == "type_identifier" {
			found = nodeText(node, src)
			return false
		}
		return true
	})
	return found
}
