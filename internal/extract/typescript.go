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
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/mrcis/mrcis/internal/entity"
)

var jsBuiltinDenylist = builtinDenylist(
	"require", "console", "Array", "Object", "Promise", "Map", "Set",
	"parseInt", "parseFloat", "isNaN", "setTimeout", "setInterval",
)

// TypeScriptExtractor handles TypeScript, TSX, JavaScript and JSX, which
// share one grammar family and one extraction walk.
type TypeScriptExtractor struct{}

func NewTypeScriptExtractor() *TypeScriptExtractor { return &TypeScriptExtractor{} }

func (e *TypeScriptExtractor) Name() string { return "typescript" }

func (e *TypeScriptExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs")
}

func (e *TypeScriptExtractor) Extract(in Input) (*ExtractionResult, error) {
	lang, langName := e.languageFor(in.FilePath)
	tree, parseErrors, err := parseSource(lang, in.Source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := splitLines(in.Source)
	result := &ExtractionResult{ParseErrors: parseErrors}
	module := moduleNameFromFile(in.FilePath, extOf(in.FilePath))
	_ = langName

	e.walkBody(tree.RootNode(), in, module, "", langName, lines, result)
	return result, nil
}

func (e *TypeScriptExtractor) languageFor(path string) (*sitter.Language, string) {
	switch {
	case hasAnyExt(path, ".tsx"):
		return tsx.GetLanguage(), "tsx"
	case hasAnyExt(path, ".ts"):
		return typescript.GetLanguage(), "typescript"
	default:
		return javascript.GetLanguage(), "javascript"
	}
}

func (e *TypeScriptExtractor) walkBody(body *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		n := body.Child(i)
		switch n.Type() {
		case "class_declaration", "abstract_class_declaration":
			e.extractClass(n, in, module, parent, lang, lines, result)
		case "interface_declaration":
			e.extractInterface(n, in, module, parent, lang, lines, result)
		case "function_declaration", "generator_function_declaration":
			e.extractFunction(n, in, module, parent, lang, lines, result)
		case "lexical_declaration", "variable_declaration":
			e.extractVarDeclaration(n, in, module, parent, lang, result)
		case "import_statement":
			e.extractImport(n, in, module, lang, result)
		case "export_statement":
			e.walkExport(n, in, module, parent, lang, lines, result)
		}
	}
}

func (e *TypeScriptExtractor) walkExport(n *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "class_declaration", "abstract_class_declaration":
			e.extractClass(c, in, module, parent, lang, lines, result)
		case "interface_declaration":
			e.extractInterface(c, in, module, parent, lang, lines, result)
		case "function_declaration", "generator_function_declaration":
			e.extractFunction(c, in, module, parent, lang, lines, result)
		case "lexical_declaration", "variable_declaration":
			e.extractVarDeclaration(c, in, module, parent, lang, result)
		}
	}
}

func (e *TypeScriptExtractor) extractClass(n *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)

	c := &entity.Class{
		Hdr: entity.Header{
			ID:            entity.NewID("class", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeClass,
			Language:      lang,
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
		IsAbstract: n.Type() == "abstract_class_declaration",
	}

	if heritage := n.ChildByFieldName("heritage") ; heritage != nil {
		e.extractHeritage(heritage, in, qname, c, result, startLine)
	} else {
		for i := 0; i < int(n.ChildCount()); i++ {
			if ch := n.Child(i); ch.Type() == "class_heritage" {
				e.extractHeritage(ch, in, qname, c, result, startLine)
			}
		}
	}

	result.Entities = append(result.Entities, c)

	if classBody := n.ChildByFieldName("body"); classBody != nil {
		e.walkClassBody(classBody, in, module, name, lang, lines, result)
	}
}

func (e *TypeScriptExtractor) extractHeritage(heritage *sitter.Node, in Input, qname string, c *entity.Class, result *ExtractionResult, line int) {
	walkNodes(heritage, func(n *sitter.Node) bool {
		if n.Type() != "extends_clause" && n.Type() != "implements_clause" {
			return true
		}
		relType := entity.RelationExtends
		if n.Type() == "implements_clause" {
			relType = entity.RelationImplements
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() != "identifier" && child.Type() != "type_identifier" {
				continue
			}
			base := nodeText(child, in.Source)
			c.BaseClasses = append(c.BaseClasses, base)
			ln := line
			result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
				ID:                  entity.NewID("pref", c.Hdr.ID, string(relType), base),
				SourceEntityID:      c.Hdr.ID,
				SourceQualifiedName: qname,
				SourceRepositoryID:  in.RepositoryID,
				TargetQualifiedName: base,
				RelationType:        relType,
				Status:              entity.PendingStatusPending,
				LineNumber:          &ln,
			})
		}
		return false
	})
}

func (e *TypeScriptExtractor) walkClassBody(body *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	for i := 0; i < int(body.ChildCount()); i++ {
		n := body.Child(i)
		if n.Type() == "method_definition" {
			e.extractMethod(n, in, module, parent, lang, lines, result)
		}
	}
}

func (e *TypeScriptExtractor) extractInterface(n *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	iface := &entity.Interface{
		Hdr: entity.Header{
			ID:            entity.NewID("iface", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeInterface,
			Language:      lang,
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
	}
	if heritage := n.ChildByFieldName("extends"); heritage != nil {
		for i := 0; i < int(heritage.ChildCount()); i++ {
			child := heritage.Child(i)
			if child.Type() != "type_identifier" {
				continue
			}
			base := nodeText(child, in.Source)
			iface.BaseClasses = append(iface.BaseClasses, base)
			ln := startLine
			result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
				ID:                  entity.NewID("pref", iface.Hdr.ID, "extends", base),
				SourceEntityID:      iface.Hdr.ID,
				SourceQualifiedName: qname,
				SourceRepositoryID:  in.RepositoryID,
				TargetQualifiedName: base,
				RelationType:        entity.RelationExtends,
				Status:              entity.PendingStatusPending,
				LineNumber:          &ln,
			})
		}
	}
	result.Entities = append(result.Entities, iface)
}

func (e *TypeScriptExtractor) extractFunction(n *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	fn := &entity.Function{
		Hdr: entity.Header{
			ID:            entity.NewID("func", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeFunction,
			Language:      lang,
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     "function " + name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    nodeText(n, in.Source),
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
		IsAsync: strings.Contains(nodeText(n, in.Source)[:min(20, len(nodeText(n, in.Source)))], "async"),
	}
	calls := e.extractCalls(n, in.Source, "")
	for _, c := range calls {
		fn.Calls = append(fn.Calls, c.Callee)
	}
	result.Entities = append(result.Entities, fn)
	e.emitCallReferences(fn.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func (e *TypeScriptExtractor) extractMethod(n *sitter.Node, in Input, module, parent, lang string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	text := nodeText(n, in.Source)
	m := &entity.Method{
		Hdr: entity.Header{
			ID:            entity.NewID("method", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeMethod,
			Language:      lang,
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
			Docstring:     leadingBlockComment(lines, startLine),
			SourceText:    text,
			Visibility:    tsVisibility(text),
			IsExported:    !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "#"),
		},
		ParentClass:   parent,
		IsConstructor: name == "constructor",
		IsStatic:      strings.HasPrefix(strings.TrimSpace(text), "static"),
		IsAsync:       strings.Contains(text[:min(24, len(text))], "async"),
	}
	calls := e.extractCalls(n, in.Source, parent)
	result.Entities = append(result.Entities, m)
	e.emitCallReferences(m.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func (e *TypeScriptExtractor) extractVarDeclaration(n *sitter.Node, in Input, module, parent, lang string, result *ExtractionResult) {
	if parent != "" {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		decl := n.Child(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		valueNode := decl.ChildByFieldName("value")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nodeText(nameNode, in.Source)
		startLine, endLine := nodeLines(decl)
		qname := entity.BuildQualifiedName(name, "", module, ".")
		isArrowFn := valueNode != nil && (valueNode.Type() == "arrow_function" || valueNode.Type() == "function")
		if isArrowFn {
			fn := &entity.Function{
				Hdr: entity.Header{
					ID:            entity.NewID("func", in.FilePath, qname),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeFunction,
					Language:      lang,
					LineStart:     startLine,
					LineEnd:       endLine,
					SourceText:    nodeText(decl, in.Source),
					Visibility:    entity.VisibilityPublic,
					IsExported:    true,
				},
				IsAsync: strings.HasPrefix(strings.TrimSpace(nodeText(valueNode, in.Source)), "async"),
			}
			calls := e.extractCalls(valueNode, in.Source, "")
			result.Entities = append(result.Entities, fn)
			e.emitCallReferences(fn.Hdr.ID, qname, in.RepositoryID, calls, result)
			continue
		}
		if name == strings.ToUpper(name) {
			result.Entities = append(result.Entities, &entity.Variable{
				Hdr: entity.Header{
					ID:            entity.NewID("var", in.FilePath, qname),
					RepositoryID:  in.RepositoryID,
					FileID:        in.FileID,
					Name:          name,
					QualifiedName: qname,
					EntityType:    entity.TypeVariable,
					Language:      lang,
					LineStart:     startLine,
					LineEnd:       endLine,
					SourceText:    nodeText(decl, in.Source),
					IsExported:    true,
					Visibility:    entity.VisibilityPublic,
				},
				IsConstant: true,
			})
		}
	}
}

func (e *TypeScriptExtractor) extractImport(n *sitter.Node, in Input, module, lang string, result *ExtractionResult) {
	srcNode := n.ChildByFieldName("source")
	if srcNode == nil {
		return
	}
	sourceModule := strings.Trim(nodeText(srcNode, in.Source), `"'`)
	isRelative := strings.HasPrefix(sourceModule, ".")
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
			Language:      lang,
			LineStart:     startLine,
			LineEnd:       startLine,
		},
		SourceModule: sourceModule,
		IsRelative:   isRelative,
		IsWildcard:   strings.Contains(nodeText(n, in.Source), "* as"),
	}
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

func (e *TypeScriptExtractor) extractCalls(body *sitter.Node, src []byte, enclosingClass string) []callBinding {
	var calls []callBinding
	walkNodes(body, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		fnNode := n.ChildByFieldName("function")
		if fnNode == nil {
			return true
		}
		line, _ := nodeLines(n)
		snippet := nodeText(n, src)
		switch fnNode.Type() {
		case "identifier":
			text := nodeText(fnNode, src)
			if jsBuiltinDenylist[text] {
				return true
			}
			calls = append(calls, callBinding{
				Callee:       text,
				Line:         line,
				Snippet:      snippet,
				Instantiates: false,
			})
		case "member_expression":
			object := fnNode.ChildByFieldName("object")
			prop := fnNode.ChildByFieldName("property")
			if object == nil || prop == nil {
				return true
			}
			receiver := nodeText(object, src)
			simple := nodeText(prop, src)
			if jsBuiltinDenylist[receiver] {
				return true
			}
			if (receiver == "this" || receiver == "super") && enclosingClass != "" {
				calls = append(calls, callBinding{Callee: enclosingClass + "." + simple, Line: line, Snippet: snippet})
				return true
			}
			calls = append(calls, callBinding{Callee: receiver + "." + simple, Receiver: receiver, Line: line, Snippet: snippet})
		}
		return true
	})
	// `new Foo()` surfaces as new_expression, not call_expression.
	walkNodes(body, func(n *sitter.Node) bool {
		if n.Type() != "new_expression" {
			return true
		}
		ctor := n.ChildByFieldName("constructor")
		if ctor == nil {
			return true
		}
		line, _ := nodeLines(n)
		calls = append(calls, callBinding{
			Callee:       nodeText(ctor, src),
			Line:         line,
			Snippet:      nodeText(n, src),
			Instantiates: true,
		})
		return true
	})
	return dedupeCalls(calls)
}

func (e *TypeScriptExtractor) emitCallReferences(sourceID, sourceQName, repoID string, calls []callBinding, result *ExtractionResult) {
	for _, c := range calls {
		relType := entity.RelationCalls
		if c.Instantiates {
			relType = entity.RelationInstantiates
		}
		result.PendingReferences = append(result.PendingReferences,
			newPendingReference(sourceID, sourceQName, repoID, c.Callee, relType, c.Line, c.Snippet, c.Receiver))
	}
}

func tsVisibility(methodText string) entity.Visibility {
	trimmed := strings.TrimSpace(methodText)
	switch {
	case strings.HasPrefix(trimmed, "private"), strings.Contains(trimmed, "#"):
		return entity.VisibilityPrivate
	case strings.HasPrefix(trimmed, "protected"):
		return entity.VisibilityProtected
	default:
		return entity.VisibilityPublic
	}
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
