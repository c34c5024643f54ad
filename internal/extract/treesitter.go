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
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// parseSource parses src with lang and returns the tree plus any
// error/missing node locations. The
// caller owns the returned tree and must Close() it.
func parseSource(lang *sitter.Language, src []byte) (*sitter.Tree, []ParseError, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, nil, err
	}
	return tree, collectParseErrors(tree.RootNode()), nil
}

// collectParseErrors walks the tree collecting tree-sitter ERROR and
// MISSING nodes as (line, column, kind) records.
func collectParseErrors(root *sitter.Node) []ParseError {
	var errs []ParseError
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsMissing() {
			errs = append(errs, ParseError{
				Line:   int(n.StartPoint().Row) + 1,
				Column: int(n.StartPoint().Column) + 1,
				Kind:   ParseErrorKindMissing,
			})
		} else if n.IsError() {
			errs = append(errs, ParseError{
				Line:   int(n.StartPoint().Row) + 1,
				Column: int(n.StartPoint().Column) + 1,
				Kind:   ParseErrorKindError,
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return errs
}

// nodeText slices the exact source span of n.
func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

// nodeLines returns (startLine, endLine) 1-indexed.
func nodeLines(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// nodeCols returns (startCol, endCol) 1-indexed.
func nodeCols(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Column) + 1, int(n.EndPoint().Column) + 1
}

// splitLines splits source into lines without trailing newline handling
// surprises, used by the doc-comment scanners in common.go.
func splitLines(src []byte) []string {
	return strings.Split(string(src), "\n")
}

// walkNodes calls fn for every descendant of root (including root), in
// pre-order, stopping the recursion below a node when fn returns false.
func walkNodes(root *sitter.Node, fn func(n *sitter.Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		walkNodes(root.Child(i), fn)
	}
}
