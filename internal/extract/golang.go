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
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/mrcis/mrcis/internal/entity"
)

// goBuiltinDenylist is the Go builtin-function denylist.
var goBuiltinDenylist = builtinDenylist(
	"len", "cap", "make", "new", "append", "copy", "delete", "close", "panic", "recover",
)

// GoExtractor extracts entities and relations from Go source.
type GoExtractor struct{}

func NewGoExtractor() *GoExtractor { return &GoExtractor{} }

func (e *GoExtractor) Name() string { return "go" }

func (e *GoExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".go")
}

func (e *GoExtractor) Extract(in Input) (*ExtractionResult, error) {
	tree, parseErrors, err := parseSource(golang.GetLanguage(), in.Source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	lines := splitLines(in.Source)
	result := &ExtractionResult{ParseErrors: parseErrors}

	module := e.packageName(root, in.Source)
	if module != "" {
		result.Entities = append(result.Entities, &entity.Module{
			Hdr: entity.Header{
				ID:            entity.NewID("mod", in.FilePath, module),
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          module,
				QualifiedName: module,
				EntityType:    entity.TypeModule,
				Language:      "go",
				IsExported:    true,
			},
		})
	}

	// receiverType -> simple method name -> entity id, for self-call binding
	// isn't needed in Go (no implicit receiver call syntax); methods are
	// still walked for calls using their own receiver variable name.
	walkNodes(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_declaration":
			e.extractFunction(n, in, module, lines, result)
			return false
		case "method_declaration":
			e.extractMethod(n, in, module, lines, result)
			return false
		case "type_declaration":
			e.extractTypeDecl(n, in, module, result)
			return false
		case "import_declaration":
			e.extractImport(n, in, module, result)
			return false
		}
		return true
	})

	return result, nil
}

func (e *GoExtractor) packageName(root *sitter.Node, src []byte) string {
	var name string
	walkNodes(root, func(n *sitter.Node) bool {
		if n.Type() == "package_clause" {
			if id := n.ChildByFieldName("name"); id != nil {
				name = nodeText(id, src)
			} else {
				for i := 0; i < int(n.ChildCount()); i++ {
					c := n.Child(i)
					if c.Type() == "package_identifier" {
						name = nodeText(c, src)
					}
				}
			}
			return false
		}
		return name == ""
	})
	return name
}

func (e *GoExtractor) extractFunction(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	signature := e.buildSignature(n, in.Source, "func "+name)
	qname := entity.BuildQualifiedName(name, "", module, ".")
	startLine, endLine := nodeLines(n)

	fn := &entity.Function{
		Hdr: entity.Header{
			ID:            entity.NewID("func", in.FilePath, name, signature),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeFunction,
			Language:      "go",
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     signature,
			Docstring:     leadingSlashDocComment(lines, startLine, "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    goVisibility(name),
			IsExported:    isUppercaseFirst(name),
		},
	}
	calls := e.extractCalls(n, in.Source, "")
	for _, c := range calls {
		fn.Calls = append(fn.Calls, c.Callee)
	}
	result.Entities = append(result.Entities, fn)
	e.emitCallReferences(fn.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func (e *GoExtractor) extractMethod(n *sitter.Node, in Input, module string, lines []string, result *ExtractionResult) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	methodName := nodeText(nameNode, in.Source)
	receiverType := e.receiverType(n, in.Source)
	signature := e.buildSignature(n, in.Source, "func ("+nodeText(n.ChildByFieldName("receiver"), in.Source)+") "+methodName)
	qname := entity.BuildQualifiedName(methodName, receiverType, module, ".")
	startLine, endLine := nodeLines(n)

	m := &entity.Method{
		Hdr: entity.Header{
			ID:            entity.NewID("method", in.FilePath, receiverType, methodName, signature),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          methodName,
			QualifiedName: qname,
			EntityType:    entity.TypeMethod,
			Language:      "go",
			LineStart:     startLine,
			LineEnd:       endLine,
			Signature:     signature,
			Docstring:     leadingSlashDocComment(lines, startLine, "//"),
			SourceText:    nodeText(n, in.Source),
			Visibility:    goVisibility(methodName),
			IsExported:    isUppercaseFirst(methodName),
		},
		ParentClass: receiverType,
	}
	calls := e.extractCalls(n, in.Source, receiverType)
	result.Entities = append(result.Entities, m)
	e.emitCallReferences(m.Hdr.ID, qname, in.RepositoryID, calls, result)
}

// receiverType extracts the base type name from a method's receiver,
// stripping the pointer.
func (e *GoExtractor) receiverType(n *sitter.Node, src []byte) string {
	receiver := n.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	for i := 0; i < int(receiver.ChildCount()); i++ {
		child := receiver.Child(i)
		if child.Type() == "parameter_declaration" {
			t := child.ChildByFieldName("type")
			return goBaseTypeName(t, src)
		}
	}
	return ""
}

func goBaseTypeName(t *sitter.Node, src []byte) string {
	if t == nil {
		return ""
	}
	switch t.Type() {
	case "pointer_type":
		for i := 0; i < int(t.ChildCount()); i++ {
			c := t.Child(i)
			if c.Type() != "*" {
				return goBaseTypeName(c, src)
			}
		}
		return ""
	case "generic_type":
		if tn := t.ChildByFieldName("type"); tn != nil {
			return nodeText(tn, src)
		}
		return nodeText(t, src)
	default:
		return nodeText(t, src)
	}
}

func (e *GoExtractor) buildSignature(n *sitter.Node, src []byte, prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		b.WriteString(nodeText(tp, src))
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		b.WriteString(nodeText(params, src))
	}
	if result := n.ChildByFieldName("result"); result != nil {
		b.WriteString(" ")
		b.WriteString(nodeText(result, src))
	}
	return b.String()
}

func (e *GoExtractor) extractTypeDecl(n *sitter.Node, in Input, module string, result *ExtractionResult) {
	for i := 0; i < int(n.ChildCount()); i++ {
		spec := n.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		name := nodeText(nameNode, in.Source)
		qname := entity.BuildQualifiedName(name, "", module, ".")
		startLine, endLine := nodeLines(spec)
		hdr := entity.Header{
			ID:            entity.NewID("type", in.FilePath, name),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			Language:      "go",
			LineStart:     startLine,
			LineEnd:       endLine,
			SourceText:    nodeText(spec, in.Source),
			IsExported:    isUppercaseFirst(name),
			Visibility:    goVisibility(name),
		}
		switch typeNode.Type() {
		case "interface_type":
			hdr.EntityType = entity.TypeInterface
			result.Entities = append(result.Entities, &entity.Interface{Hdr: hdr})
		case "struct_type":
			hdr.EntityType = entity.TypeClass
			c := &entity.Class{Hdr: hdr}
			for _, fieldName := range e.embeddedFields(typeNode, in.Source) {
				c.BaseClasses = append(c.BaseClasses, fieldName)
				ln := startLine
				result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
					ID:                  entity.NewID("pref", c.Hdr.ID, "extends", fieldName),
					SourceEntityID:      c.Hdr.ID,
					SourceQualifiedName: qname,
					SourceRepositoryID:  in.RepositoryID,
					TargetQualifiedName: fieldName,
					RelationType:        entity.RelationExtends,
					Status:              entity.PendingStatusPending,
					LineNumber:          &ln,
				})
			}
			result.Entities = append(result.Entities, c)
		default:
			hdr.EntityType = entity.TypeVariable
			result.Entities = append(result.Entities, &entity.Variable{Hdr: hdr})
		}
	}
}

// embeddedFields returns the type names of anonymously embedded struct
// fields, Go's analogue of inheritance.
func (e *GoExtractor) embeddedFields(structType *sitter.Node, src []byte) []string {
	var names []string
	fieldList := structType.ChildByFieldName("body")
	if fieldList == nil {
		return nil
	}
	for i := 0; i < int(fieldList.ChildCount()); i++ {
		field := fieldList.Child(i)
		if field.Type() != "field_declaration" {
			continue
		}
		if field.ChildByFieldName("name") != nil {
			continue // named field, not embedded
		}
		if t := field.ChildByFieldName("type"); t != nil {
			names = append(names, goBaseTypeName(t, src))
		}
	}
	return names
}

func (e *GoExtractor) extractImport(n *sitter.Node, in Input, module string, result *ExtractionResult) {
	walkNodes(n, func(node *sitter.Node) bool {
		if node.Type() != "import_spec" {
			return true
		}
		pathNode := node.ChildByFieldName("path")
		if pathNode == nil {
			return false
		}
		importPath := strings.Trim(nodeText(pathNode, in.Source), `"`)
		alias := ""
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			alias = nodeText(nameNode, in.Source)
		}
		startLine, _ := nodeLines(node)
		qname := entity.BuildQualifiedName(importPath, "", module, ".")
		imp := &entity.Import{
			Hdr: entity.Header{
				ID:            entity.NewID("import", in.FilePath, importPath),
				RepositoryID:  in.RepositoryID,
				FileID:        in.FileID,
				Name:          importPath,
				QualifiedName: qname,
				EntityType:    entity.TypeImport,
				Language:      "go",
				LineStart:     startLine,
				LineEnd:       startLine,
			},
			SourceModule: importPath,
			Alias:        alias,
		}
		result.Entities = append(result.Entities, imp)
		ln := startLine
		result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
			ID:                  entity.NewID("pref", imp.Hdr.ID, "imports", importPath),
			SourceEntityID:      imp.Hdr.ID,
			SourceQualifiedName: qname,
			SourceRepositoryID:  in.RepositoryID,
			TargetQualifiedName: importPath,
			RelationType:        entity.RelationImports,
			Status:              entity.PendingStatusPending,
			LineNumber:          &ln,
		})
		return false
	})
}

// extractCalls walks a function/method body for call expressions,
// skipping the builtin denylist.
func (e *GoExtractor) extractCalls(body *sitter.Node, src []byte, enclosingType string) []callBinding {
	var calls []callBinding
	walkNodes(body, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		fnNode := n.ChildByFieldName("function")
		if fnNode == nil {
			return true
		}
		text := nodeText(fnNode, src)
		line, _ := nodeLines(n)
		switch fnNode.Type() {
		case "identifier":
			if goBuiltinDenylist[text] {
				return true
			}
			calls = append(calls, callBinding{
				Callee:       text,
				Line:         line,
				Snippet:      nodeText(n, src),
				Instantiates: isUppercaseFirst(text),
			})
		case "selector_expression":
			operand := fnNode.ChildByFieldName("operand")
			field := fnNode.ChildByFieldName("field")
			if operand == nil || field == nil {
				return true
			}
			receiver := nodeText(operand, src)
			simple := nodeText(field, src)
			calls = append(calls, callBinding{
				Callee:       receiver + "." + simple,
				Receiver:     receiver,
				Line:         line,
				Snippet:      nodeText(n, src),
				Instantiates: false,
			})
		}
		return true
	})
	return dedupeCalls(calls)
}

func (e *GoExtractor) emitCallReferences(sourceID, sourceQName, repoID string, calls []callBinding, result *ExtractionResult) {
	for _, c := range calls {
		relType := entity.RelationCalls
		if c.Instantiates {
			relType = entity.RelationInstantiates
		}
		receiver, simple := splitReceiver(c.Callee)
		_ = simple
		pattern := c.Callee
		result.PendingReferences = append(result.PendingReferences,
			newPendingReference(sourceID, sourceQName, repoID, pattern, relType, c.Line, c.Snippet, receiver))
	}
}

func goVisibility(name string) entity.Visibility {
	if isUppercaseFirst(name) {
		return entity.VisibilityPublic
	}
	return entity.VisibilityPrivate
}
