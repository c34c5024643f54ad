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
	"github.com/smacker/go-tree-sitter/python"

	"github.com/mrcis/mrcis/internal/entity"
)

var pyBuiltinDenylist = builtinDenylist(
	"print", "len", "range", "str", "int", "float", "bool", "list", "dict",
	"set", "tuple", "isinstance", "super", "getattr", "setattr", "hasattr",
	"open", "enumerate", "zip", "map", "filter", "sorted", "reversed",
)

// PythonExtractor extracts entities and relations from Python source.
type PythonExtractor struct{}

func NewPythonExtractor() *PythonExtractor { return &PythonExtractor{} }

func (e *PythonExtractor) Name() string { return "python" }

func (e *PythonExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".py", ".pyi")
}

func (e *PythonExtractor) Extract(in Input) (*ExtractionResult, error) {
	tree, parseErrors, err := parseSource(python.GetLanguage(), in.Source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := splitLines(in.Source)
	result := &ExtractionResult{ParseErrors: parseErrors}
	module := moduleNameFromFile(in.FilePath, ".py")

	e.walkBody(tree.RootNode(), in, module, "", lines, result)
	return result, nil
}

// walkBody visits top-level statements of a module or class body,
// recursing into nested classes/functions with an updated parent.
func (e *PythonExtractor) walkBody(body *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		n := body.Child(i)
		switch n.Type() {
		case "class_definition":
			e.extractClass(n, in, module, parent, lines, result)
		case "function_definition":
			e.extractFunction(n, in, module, parent, lines, result)
		case "import_statement", "import_from_statement":
			e.extractImport(n, in, module, result)
		case "decorated_definition":
			e.extractDecorated(n, in, module, parent, lines, result)
		case "expression_statement", "assignment":
			e.extractAssignment(n, in, module, parent, result)
		}
	}
}

func (e *PythonExtractor) extractDecorated(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
	var decorators []string
	var def *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "decorator":
			decorators = append(decorators, strings.TrimSpace(strings.TrimPrefix(nodeText(c, in.Source), "@")))
		case "function_definition", "class_definition":
			def = c
		}
	}
	if def == nil {
		return
	}
	switch def.Type() {
	case "function_definition":
		e.extractFunction(def, in, module, parent, lines, result, decorators...)
	case "class_definition":
		e.extractClass(def, in, module, parent, lines, result)
	}
}

func (e *PythonExtractor) extractClass(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult) {
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
			Language:      "python",
			LineStart:     startLine,
			LineEnd:       endLine,
			Docstring:     pyDocstringOf(n, in.Source),
			SourceText:    nodeText(n, in.Source),
			Visibility:    pyVisibility(name),
			IsExported:    !strings.HasPrefix(name, "_"),
		},
	}

	if argList := n.ChildByFieldName("superclasses"); argList != nil {
		for i := 0; i < int(argList.ChildCount()); i++ {
			arg := argList.Child(i)
			if arg.Type() != "identifier" && arg.Type() != "attribute" {
				continue
			}
			base := nodeText(arg, in.Source)
			c.BaseClasses = append(c.BaseClasses, base)
			ln := startLine
			result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
				ID:                  entity.NewID("pref", c.Hdr.ID, "extends", base),
				SourceEntityID:      c.Hdr.ID,
				SourceQualifiedName: qname,
				SourceRepositoryID:  in.RepositoryID,
				TargetQualifiedName: base,
				RelationType:        entity.RelationExtends,
				Status:              entity.PendingStatusPending,
				LineNumber:          &ln,
			})
		}
	}

	result.Entities = append(result.Entities, c)

	if classBody := n.ChildByFieldName("body"); classBody != nil {
		e.walkBody(classBody, in, module, name, lines, result)
	}
}

func (e *PythonExtractor) extractFunction(n *sitter.Node, in Input, module, parent string, lines []string, result *ExtractionResult, decorators ...string) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, in.Source)
	qname := entity.BuildQualifiedName(name, parent, module, ".")
	startLine, endLine := nodeLines(n)
	isAsync := strings.HasPrefix(strings.TrimSpace(nodeText(n, in.Source)), "async")

	params, firstParam := e.extractParameters(n, in.Source)

	hdr := entity.Header{
		RepositoryID:  in.RepositoryID,
		FileID:        in.FileID,
		Name:          name,
		QualifiedName: qname,
		Language:      "python",
		LineStart:     startLine,
		LineEnd:       endLine,
		Signature:     "def " + name + nodeTextOrEmpty(n.ChildByFieldName("parameters"), in.Source),
		Docstring:     pyDocstringOf(n, in.Source),
		SourceText:    nodeText(n, in.Source),
		Visibility:    pyVisibility(name),
		IsExported:    !strings.HasPrefix(name, "_"),
		Decorators:    decorators,
	}

	var selfBinding string
	if parent != "" && firstParam != "" {
		selfBinding = firstParam
	}

	if parent == "" {
		hdr.EntityType = entity.TypeFunction
		hdr.ID = entity.NewID("func", in.FilePath, qname)
		fn := &entity.Function{Hdr: hdr, Parameters: params, IsAsync: isAsync}
		calls := e.extractCalls(n, in.Source, "", "")
		result.Entities = append(result.Entities, fn)
		e.emitCallReferences(fn.Hdr.ID, qname, in.RepositoryID, calls, result)
		return
	}

	hdr.EntityType = entity.TypeMethod
	hdr.ID = entity.NewID("method", in.FilePath, qname)
	m := &entity.Method{
		Hdr:           hdr,
		ParentClass:   parent,
		IsConstructor: name == "__init__",
		IsAsync:       isAsync,
		IsStatic:      hasDecorator(decorators, "staticmethod"),
		IsClassmethod: hasDecorator(decorators, "classmethod"),
		IsProperty:    hasDecorator(decorators, "property"),
	}
	calls := e.extractCalls(n, in.Source, selfBinding, parent)
	result.Entities = append(result.Entities, m)
	e.emitCallReferences(m.Hdr.ID, qname, in.RepositoryID, calls, result)
}

func hasDecorator(decorators []string, name string) bool {
	for _, d := range decorators {
		if d == name || strings.HasPrefix(d, name+"(") || strings.HasPrefix(d, name+".") {
			return true
		}
	}
	return false
}

// extractParameters returns the declared parameters and, when present,
// the name of the first parameter (conventionally self/cls).
func (e *PythonExtractor) extractParameters(n *sitter.Node, src []byte) ([]entity.Parameter, string) {
	paramList := n.ChildByFieldName("parameters")
	if paramList == nil {
		return nil, ""
	}
	var params []entity.Parameter
	var first string
	for i := 0; i < int(paramList.ChildCount()); i++ {
		p := paramList.Child(i)
		var name, typ string
		switch p.Type() {
		case "identifier":
			name = nodeText(p, src)
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			if id := firstIdentifierChild(p); id != nil {
				name = nodeText(id, src)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				typ = nodeText(t, src)
			}
		default:
			continue
		}
		if name == "" {
			continue
		}
		if first == "" {
			first = name
		}
		params = append(params, entity.Parameter{Name: name, Type: typ})
	}
	return params, first
}

func firstIdentifierChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "identifier" {
			return n.Child(i)
		}
	}
	return nil
}

func (e *PythonExtractor) extractImport(n *sitter.Node, in Input, module string, result *ExtractionResult) {
	src := in.Source
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() != "dotted_name" && c.Type() != "aliased_import" {
				continue
			}
			name, alias := pyImportNameAlias(c, src)
			e.emitImport(n, in, module, name, alias, false, false, 0, result)
		}
	case "import_from_statement":
		moduleNode := n.ChildByFieldName("module_name")
		relLevel := 0
		isRelative := false
		fromName := ""
		if moduleNode != nil {
			fromName = nodeText(moduleNode, src)
		}
		text := nodeText(n, src)
		if strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(text, "from ")), ".") {
			isRelative = true
			for _, r := range strings.TrimPrefix(strings.TrimSpace(text), "from ") {
				if r == '.' {
					relLevel++
					continue
				}
				break
			}
		}
		isWildcard := strings.Contains(text, "import *")
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() != "dotted_name" && c.Type() != "aliased_import" {
				continue
			}
			if moduleNode != nil && c == moduleNode {
				continue
			}
			name, alias := pyImportNameAlias(c, src)
			full := fromName
			if full != "" {
				full += "." + name
			} else {
				full = name
			}
			e.emitImport(n, in, module, full, alias, isRelative, isWildcard, relLevel, result)
		}
		if isWildcard {
			e.emitImport(n, in, module, fromName, "", isRelative, true, relLevel, result)
		}
	}
}

func pyImportNameAlias(n *sitter.Node, src []byte) (name, alias string) {
	if n.Type() == "aliased_import" {
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			name = nodeText(nameNode, src)
		}
		if aliasNode := n.ChildByFieldName("alias"); aliasNode != nil {
			alias = nodeText(aliasNode, src)
		}
		return
	}
	return nodeText(n, src), ""
}

func (e *PythonExtractor) emitImport(n *sitter.Node, in Input, module, sourceModule, alias string, isRelative, isWildcard bool, relLevel int, result *ExtractionResult) {
	startLine, _ := nodeLines(n)
	qname := entity.BuildQualifiedName(sourceModule, "", module, ".")
	imp := &entity.Import{
		Hdr: entity.Header{
			ID:            entity.NewID("import", in.FilePath, sourceModule, alias),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          sourceModule,
			QualifiedName: qname,
			EntityType:    entity.TypeImport,
			Language:      "python",
			LineStart:     startLine,
			LineEnd:       startLine,
		},
		SourceModule:  sourceModule,
		Alias:         alias,
		IsRelative:    isRelative,
		IsWildcard:    isWildcard,
		RelativeLevel: relLevel,
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

func (e *PythonExtractor) extractAssignment(n *sitter.Node, in Input, module, parent string, result *ExtractionResult) {
	var assign *sitter.Node
	if n.Type() == "assignment" {
		assign = n
	} else {
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "assignment" {
				assign = n.Child(i)
			}
		}
	}
	if assign == nil || parent != "" {
		return // only module-level constants are tracked as entities
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := nodeText(left, in.Source)
	if name != strings.ToUpper(name) {
		return // only SCREAMING_CASE constants
	}
	startLine, endLine := nodeLines(assign)
	qname := entity.BuildQualifiedName(name, "", module, ".")
	result.Entities = append(result.Entities, &entity.Variable{
		Hdr: entity.Header{
			ID:            entity.NewID("var", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeVariable,
			Language:      "python",
			LineStart:     startLine,
			LineEnd:       endLine,
			SourceText:    nodeText(assign, in.Source),
			IsExported:    true,
			Visibility:    entity.VisibilityPublic,
		},
		IsConstant: true,
	})
}

// extractCalls walks a function/method body for calls, binding
// self/cls-qualified calls to the enclosing class immediately.
func (e *PythonExtractor) extractCalls(body *sitter.Node, src []byte, selfBinding, enclosingClass string) []callBinding {
	var calls []callBinding
	walkNodes(body, func(n *sitter.Node) bool {
		if n.Type() != "call" {
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
			if pyBuiltinDenylist[text] {
				return true
			}
			calls = append(calls, callBinding{
				Callee:       text,
				Line:         line,
				Snippet:      snippet,
				Instantiates: isUppercaseFirst(text),
			})
		case "attribute":
			object := fnNode.ChildByFieldName("object")
			attr := fnNode.ChildByFieldName("attribute")
			if object == nil || attr == nil {
				return true
			}
			receiver := nodeText(object, src)
			simple := nodeText(attr, src)
			if selfBinding != "" && receiver == selfBinding {
				calls = append(calls, callBinding{
					Callee:   enclosingClass + "." + simple,
					Receiver: "",
					Line:     line,
					Snippet:  snippet,
				})
				return true
			}
			calls = append(calls, callBinding{
				Callee:   receiver + "." + simple,
				Receiver: receiver,
				Line:     line,
				Snippet:  snippet,
			})
		}
		return true
	})
	return dedupeCalls(calls)
}

func (e *PythonExtractor) emitCallReferences(sourceID, sourceQName, repoID string, calls []callBinding, result *ExtractionResult) {
	for _, c := range calls {
		relType := entity.RelationCalls
		if c.Instantiates {
			relType = entity.RelationInstantiates
		}
		receiver, _ := splitReceiver(c.Callee)
		if c.Receiver == "" && receiver != "" {
			receiver = ""
		}
		result.PendingReferences = append(result.PendingReferences,
			newPendingReference(sourceID, sourceQName, repoID, c.Callee, relType, c.Line, c.Snippet, c.Receiver))
	}
}

// pyDocstringOf returns the string-literal expression statement immediately
// following def/class header as its docstring, per Python convention.
func pyDocstringOf(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	strNode := first.Child(0)
	if strNode.Type() != "string" {
		return ""
	}
	text := nodeText(strNode, src)
	text = strings.TrimPrefix(text, "r")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			text = text[len(q) : len(text)-len(q)]
			break
		}
	}
	return strings.TrimSpace(text)
}

func pyVisibility(name string) entity.Visibility {
	switch {
	case strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__"):
		return entity.VisibilityPrivate
	case strings.HasPrefix(name, "_"):
		return entity.VisibilityProtected
	default:
		return entity.VisibilityPublic
	}
}

func nodeTextOrEmpty(n *sitter.Node, src []byte) string {
	if n == nil {
		return "()"
	}
	return nodeText(n, src)
}

// moduleNameFromFile derives a module name from a repository-relative
// file path per the file-stem convention, e.g. "pkg/services/resolver.py"
// -> "resolver", with "__init__.py" collapsing to its containing
// package's name.
func moduleNameFromFile(path, ext string) string {
	clean := strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")
	stem := strings.TrimSuffix(baseName(clean), ext)
	if stem != "__init__" {
		return stem
	}
	parts := strings.Split(clean, "/")
	if len(parts) < 2 {
		return stem
	}
	return parts[len(parts)-2]
}
