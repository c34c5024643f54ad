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
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/mrcis/mrcis/internal/entity"
)

// RustExtractor extracts entities and relations from Rust source.
type RustExtractor struct{}

func NewRustExtractor() *RustExtractor { return &RustExtractor{} }

func (e *RustExtractor) Name() string { return "rust" }

func (e *RustExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".rs")
}

func (e *RustExtractor) Extract(in Input) (*ExtractionResult, error) {
	tree, parseErrors, err := parseSource(rust.GetLanguage(), in.Source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := splitLines(in.Source)
	result := &ExtractionResult{ParseErrors: parseErrors}
	module := moduleNameFromFile(in.FilePath, ".rs")
	if strings.HasSuffix(module, ".mod") {
		module = strings.TrimSuffix(module, ".mod")
	}

	e.walkItems(tree.RootNode(), in, module, "", lines, result)
	return result, nil
}

func (e *RustExtractor) walkItems(root *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	if root == nil {
		return
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		switch n.Type() {
		case "struct_item":
			e.extractStruct(n, in, module, lines, result)
		case "trait_item":
			e.extractTrait(n, in, module, lines, result)
		case "impl_item":
			e.extractImpl(n, in, module, lines, result)
		case "function_item":
			e.extractFunction(n, in, module, parent, lines, result)
		case "use_declaration":
			e.extractUse(n, in, module, result)
		case "mod_item":
			if body := n.ChildByFieldName("body"); body != nil {
				nameNode := n.ChildByFieldName("name")
				sub := module
				if nameNode != nil {
					sub = entity.BuildQualifiedName(nodeText(nameNode, in.Source), "", module, "::")
				}
				e.walkItems(body, in, sub, "", lines, result)
			}
		}
	}
}

func (e *RustExtractor) extractStruct(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, "", module, "::")
	startLine, endLine := nodeLines(n)
	result.Entities = append(result.Entities, &entity.Class{
		Hdr: entity.Header{
			ID:            entity.NewID("struct", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeClass,
			Language:      "rust",
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingSlashDocComment(lines, startLine, "///", "//!", "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    rustVisibility(n, in.Source),
			IsExported:    rustIsPublic(n, in.Source),
		},
	})
}

func (e *RustExtractor) extractTrait(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, "", module, "::")
	startLine, endLine := nodeLines(n)
	iface := &entity.Interface{
		Hdr: entity.Header{
			ID:            entity.NewID("trait", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeInterface,
			Language:      "rust",
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingSlashDocComment(lines, startLine, "///", "//!", "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    rustVisibility(n, in.Source),
			IsExported:    rustIsPublic(n, in.Source),
		},
	}
	if bounds := n.ChildByFieldName("bounds"); bounds != nil {
		for i := 0; i < int(bounds.ChildCount()); i++ {
			c := bounds.Child(i)
			if c.Type() == "type_identifier" {
				iface.BaseClasses = append(iface.BaseClasses, nodeText(c, in.Source))
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		e.walkTraitOrImplBody(body, in, module, name, lines, result)
	}
	result.Entities = append(result.Entities, iface)
}

// extractImpl models `impl Trait for Type` as a RelationImplements pending
// reference from Type to Trait, and binds impl methods to Type's qualified
// name as their parent.
func (e *RustExtractor) extractImpl(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	typeName := rustTypeBaseName(typeNode, in.Source)
	traitNode := n.ChildByFieldName("trait")
	if traitNode != nil {
		traitName := rustTypeBaseName(traitNode, in.Source)
		qname := entity.BuildQualifiedName(typeName, "", module, "::")
		startLine, _ := nodeLines(n)
		implID := entity.NewID("impl", in.FilePath, qname, traitName)
		ln := startLine
		result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
			ID:                  entity.NewID("pref", implID, "implements", traitName),
			SourceEntityID:      implID,
			SourceQualifiedName: qname,
			SourceRepositoryID:  in.RepositoryID,
			TargetQualifiedName: traitName,
			RelationType:        entity.RelationImplements,
			Status:              entity.PendingStatusPending,
			LineNumber:          &ln,
		})
	}
	if body := n.ChildByFieldName("body"); body != nil {
		e.walkTraitOrImplBody(body, in, module, typeName, lines, result)
	}
}

func (e *RustExtractor) walkTraitOrImplBody(body *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	for i := 0; i < int(body.ChildCount()); i++ {
		n := body.Child(i)
		if n.Type() == "function_item" {
			e.extractMethod(n, in, module, parent, lines, result)
		}
	}
}

func (e *RustExtractor) extractFunction(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, "::")
	startLine, endLine := nodeLines(n)
	isAsync := strings.HasPrefix(strings.TrimSpace(nodeText(n, in.Source)), "pub async") ||
		strings.HasPrefix(strings.TrimSpace(nodeText(n, in.Source)), "async")
	fn := &entity.Function{
		Hdr: entity.Header{
			ID:            entity.NewID("fn", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeFunction,
			Language:      "rust",
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     "fn " + name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
			Docstring:     leadingSlashDocComment(lines, startLine, "///", "//!", "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    rustVisibility(n, in.Source),
			IsExported:    rustIsPublic(n, in.Source),
		},
		IsAsync: isAsync,
	}
	calls := e.extractCalls(n, in.Source, "")
	result.Entities = append(result.Entities, fn)
	e.emitCallReferences(fn.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func (e *RustExtractor) extractMethod(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, "::")
	startLine, endLine := nodeLines(n)
	hasSelf := strings.Contains(nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source), "self")
	m := &entity.Method{
		Hdr: entity.Header{
			ID:            entity.NewID("method", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeMethod,
			Language:      "rust",
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     "fn " + name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
			Docstring:     leadingSlashDocComment(lines, startLine, "///", "//!", "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    rustVisibility(n, in.Source),
			IsExported:    rustIsPublic(n, in.Source),
		},
		ParentClass:   parent,
		IsStatic:      !hasSelf,
		IsConstructor: name == "new",
	}
	selfBinding := ""
	if hasSelf {
		selfBinding = "self"
	}
	calls := e.extractCalls(n, in.Source, selfBinding)
	result.Entities = append(result.Entities, m)
	e.emitCallReferences(m.Hdr.ID, qname, in.RepositoryID, calls, result, parent)
}

// extractUse emits one PendingReference per imported symbol, not per use
// statement: `use a::b::{c, d as e}` yields two
// import entities, "a::b::c" and "a::b::d" (aliased "e").
func (e *RustExtractor) extractUse(n *sitter.Node, in Input, module string, result *ExtractionResult) {
	argNode := n.ChildByFieldName("argument")
	if argNode == nil {
		return
	}
	startLine, _ := nodeLines(n)
	for _, imp := range flattenUseTree(argNode, "", in.Source) {
		qname := entity.BuildQualifiedName(imp.path, "", module, "::")
		impEntity := &entity.Import{
			Hdr: entity.Header{
				ID:            entity.NewID("use", in.FilePath, imp.path, imp.alias),
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          imp.path,
				QualifiedName: qname,
				EntityType:    entity.TypeImport,
				Language:      "rust",
				LineStart:     startLine,
				LineEnd:       startLine,
			},
			SourceModule: imp.path,
			Alias:        imp.alias,
			IsWildcard:   imp.wildcard,
		}
		result.Entities = append(result.Entities, impEntity)
		ln := startLine
		result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
			ID:                  entity.NewID("pref", impEntity.Hdr.ID, "imports", imp.path),
			SourceEntityID:      impEntity.Hdr.ID,
			SourceQualifiedName: qname,
			SourceRepositoryID:  in.RepositoryID,
			TargetQualifiedName: imp.path,
			RelationType:        entity.RelationImports,
			Status:              entity.PendingStatusPending,
			LineNumber:          &ln,
		})
	}
}

type rustUseSymbol struct {
	path     string
	alias    string
	wildcard bool
}

func flattenUseTree(n *sitter.Node, prefix string, src []byte) []rustUseSymbol {
	switch n.Type() {
	case "scoped_identifier":
		return []rustUseSymbol{{path: joinRustPath(prefix, nodeText(n, src))}}
	case "identifier", "self", "crate", "super":
		return []rustUseSymbol{{path: joinRustPath(prefix, nodeText(n, src))}}
	case "use_as_clause":
		path := nodeText(n.ChildByFieldName("path"), src)
		alias := nodeText(n.ChildByFieldName("alias"), src)
		return []rustUseSymbol{{path: joinRustPath(prefix, path), alias: alias}}
	case "use_wildcard":
		base := ""
		if p := n.ChildByFieldName("path"); p != nil {
			base = nodeText(p, src)
		}
		return []rustUseSymbol{{path: joinRustPath(prefix, base), wildcard: true}}
	case "scoped_use_list":
		path := ""
		if p := n.ChildByFieldName("path"); p != nil {
			path = nodeText(p, src)
		}
		list := n.ChildByFieldName("list")
		if list == nil {
			return nil
		}
		var out []rustUseSymbol
		for i := 0; i < int(list.ChildCount()); i++ {
			child := list.Child(i)
			if child.Type() == "," || child.Type() == "{" || child.Type() == "}" {
				continue
			}
			out = append(out, flattenUseTree(child, joinRustPath(prefix, path), src)...)
		}
		return out
	case "use_list":
		var out []rustUseSymbol
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "," || child.Type() == "{" || child.Type() == "}" {
				continue
			}
			out = append(out, flattenUseTree(child, prefix, src)...)
		}
		return out
	default:
		return []rustUseSymbol{{path: joinRustPath(prefix, nodeText(n, src))}}
	}
}

func joinRustPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "::" + name
}

func (e *RustExtractor) extractCalls(body *sitter.Node, src []byte, selfBinding string) []callBinding {
	var calls []callBinding
	walkNodes(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call_expression":
			fnNode := n.ChildByFieldName("function")
			if fnNode == nil {
				return true
			}
			line, _ := nodeLines(n)
			snippet := nodeText(n, src)
			switch fnNode.Type() {
			case "identifier":
				text := nodeText(fnNode, src)
				calls = append(calls, callBinding{Callee: text, Line: line, Snippet: snippet, Instantiates: isUppercaseFirst(text)})
			case "scoped_identifier":
				text := nodeText(fnNode, src)
				calls = append(calls, callBinding{Callee: text, Line: line, Snippet: snippet})
			case "field_expression":
				value := fnNode.ChildByFieldName("value")
				field := fnNode.ChildByFieldName("field")
				if value == nil || field == nil {
					return true
				}
				receiver := nodeText(value, src)
				simple := nodeText(field, src)
				if receiver == selfBinding {
					calls = append(calls, callBinding{Callee: "Self." + simple, Line: line, Snippet: snippet})
					return true
				}
				calls = append(calls, callBinding{Callee: receiver + "." + simple, Receiver: receiver, Line: line, Snippet: snippet})
			}
		}
		return true
	})
	return dedupeCalls(calls)
}

func (e *RustExtractor) emitCallReferences(sourceID, sourceQName, repoID string, calls []callBinding, result *ExtractionResult, enclosingType ...string) {
	for _, c := range calls {
		callee := c.Callee
		if len(enclosingType) > 0 && enclosingType[0] != "" {
			callee = strings.Replace(callee, "Self.", enclosingType[0]+".", 1)
		}
		relType := entity.RelationCalls
		if c.Instantiates {
			relType = entity.RelationInstantiates
		}
		result.PendingReferences = append(result.PendingReferences,
			newPendingReference(sourceID, sourceQName, repoID, callee, relType, c.Line, c.Snippet, c.Receiver))
	}
}

func rustIsPublic(n *sitter.Node, src []byte) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "visibility_modifier" {
			return true
		}
	}
	return false
}

func rustVisibility(n *sitter.Node, src []byte) entity.Visibility {
	if rustIsPublic(n, src) {
		return entity.VisibilityPublic
	}
	return entity.VisibilityPrivate
}

func rustTypeBaseName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "generic_type":
		if t := n.ChildByFieldName("type"); t != nil {
			return rustTypeBaseName(t, src)
		}
	case "reference_type":
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() != "&" && c.Type() != "mutable_specifier" {
				return rustTypeBaseName(c, src)
			}
		}
	}
	return nodeText(n, src)
}
