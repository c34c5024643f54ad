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
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mrcis/mrcis/internal/entity"
)

// DefaultYAMLMaxDepth bounds how deep the key walk descends; keys below
// this depth are skipped, not errors.
const DefaultYAMLMaxDepth = 5

// YAMLExtractor walks docker-compose files, Kubernetes manifests, and CI
// workflow definitions: every mapping key down to MaxDepth becomes a
// Variable entity with a dotted qualified name, list items index as
// name[i], and "uses:"/"image:"/"extends:" values become references so a
// workflow's action pins and a compose file's images show up in search.
type YAMLExtractor struct {
	MaxDepth int
}

func NewYAMLExtractor() *YAMLExtractor { return &YAMLExtractor{MaxDepth: DefaultYAMLMaxDepth} }

func (e *YAMLExtractor) Name() string { return "yaml" }

func (e *YAMLExtractor) Supports(path string) bool {
	return hasAnyExt(path, ".yaml", ".yml")
}

func (e *YAMLExtractor) Extract(in Input) (*ExtractionResult, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(in.Source, &doc); err != nil {
		return &ExtractionResult{ParseErrors: []ParseError{{Line: 1, Kind: ParseErrorKindError}}}, nil
	}
	result := &ExtractionResult{}
	if len(doc.Content) == 0 {
		return result, nil
	}
	module := moduleNameFromFile(in.FilePath, extOf(in.FilePath))
	e.walkNode(doc.Content[0], in, module, 1, result)
	return result, nil
}

func (e *YAMLExtractor) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return DefaultYAMLMaxDepth
}

func (e *YAMLExtractor) walkNode(node *yaml.Node, in Input, parent string, depth int, result *ExtractionResult) {
	if node == nil || depth > e.maxDepth() {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			key := keyNode.Value
			qname := parent + "." + key
			e.emitVariable(in, key, qname, keyNode.Line, result)

			if (key == "uses" || key == "image" || key == "extends") && valNode.Kind == yaml.ScalarNode {
				e.emitReference(in, qname, valNode.Value, valNode.Line, result)
			}
			e.walkNode(valNode, in, qname, depth+1, result)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			name := entity.SimpleName(parent, ".") + "[" + strconv.Itoa(i) + "]"
			qname := fmt.Sprintf("%s[%d]", parent, i)
			e.emitVariable(in, name, qname, item.Line, result)
			e.walkNode(item, in, qname, depth+1, result)
		}
	}
}

func (e *YAMLExtractor) emitVariable(in Input, name, qname string, line int, result *ExtractionResult) {
	result.Entities = append(result.Entities, &entity.Variable{
		Hdr: entity.Header{
			ID:            entity.NewID("key", in.FilePath, qname),
			RepositoryID:  in.RepositoryID,
			FileID:        in.FileID,
			Name:          name,
			QualifiedName: qname,
			EntityType:    entity.TypeVariable,
			Language:      "yaml",
			LineStart:     line,
			LineEnd:       line,
			Visibility:    entity.VisibilityPublic,
			IsExported:    true,
		},
	})
}

func (e *YAMLExtractor) emitReference(in Input, sourceQName, target string, line int, result *ExtractionResult) {
	sourceID := entity.NewID("key", in.FilePath, sourceQName)
	ln := line
	result.PendingReferences = append(result.PendingReferences, entity.PendingReference{
		ID:                  entity.NewID("pref", sourceID, "references", target, strconv.Itoa(line)),
		SourceEntityID:      sourceID,
		SourceQualifiedName: sourceQName,
		SourceRepositoryID:  in.RepositoryID,
		TargetQualifiedName: target,
		RelationType:        entity.RelationReferences,
		Status:              entity.PendingStatusPending,
		LineNumber:          &ln,
	})
}
