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

package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mrcis/mrcis/internal/entity"
)

// EntityVector is a single embedding row; VectorID is
// content-addressed the same way entity ids
// are (entity.NewID), so re-embedding an unchanged entity is a no-op.
type EntityVector struct {
	VectorID  string
	EntityID  string
	Embedding []float64
}

// UpsertVectors writes a batch of embeddings, returning the count
// written.
func (s *Store) UpsertVectors(ctx context.Context, vectors []EntityVector) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	for _, v := range vectors {
		query := fmt.Sprintf(`?[vector_id, entity_id, embedding] <- [[$vector_id, $entity_id, %s]]
			:put entity_vector { vector_id, entity_id, embedding }`, formatVectorLiteral(v.Embedding))
		if err := s.backend.Execute(ctx, query, map[string]any{
			"vector_id": v.VectorID,
			"entity_id": v.EntityID,
		}); err != nil {
			return 0, fmt.Errorf("upsert vector %s: %w", v.VectorID, err)
		}
	}
	return len(vectors), nil
}

// DeleteVectorsForFile removes every vector belonging to entities in
// fileID, returning the count deleted (grounded on
// Neo4jVectorStore.delete_by_file).
func (s *Store) DeleteVectorsForFile(ctx context.Context, fileID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[vector_id] := *code_entity{file_id: $file_id, vector_id}, vector_id != ""`,
		map[string]any{"file_id": fileID})
	if err != nil {
		return 0, fmt.Errorf("find vectors for file: %w", err)
	}
	count := 0
	for _, row := range result.Rows {
		vectorID := scalarStr(row, 0)
		if err := s.backend.Execute(ctx, `?[vector_id] <- [[$vector_id]] :rm entity_vector { vector_id }`,
			map[string]any{"vector_id": vectorID}); err != nil {
			return count, fmt.Errorf("delete vector %s: %w", vectorID, err)
		}
		count++
	}
	return count, nil
}

// DeleteVectorsForRepository removes every vector belonging to entities
// in repositoryID, returning the count deleted (grounded on
// Neo4jVectorStore.delete_by_repository).
func (s *Store) DeleteVectorsForRepository(ctx context.Context, repositoryID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[vector_id] := *code_entity{repository_id: $repository_id, vector_id}, vector_id != ""`,
		map[string]any{"repository_id": repositoryID})
	if err != nil {
		return 0, fmt.Errorf("find vectors for repository: %w", err)
	}
	count := 0
	for _, row := range result.Rows {
		vectorID := scalarStr(row, 0)
		if err := s.backend.Execute(ctx, `?[vector_id] <- [[$vector_id]] :rm entity_vector { vector_id }`,
			map[string]any{"vector_id": vectorID}); err != nil {
			return count, fmt.Errorf("delete vector %s: %w", vectorID, err)
		}
		count++
	}
	return count, nil
}

// SearchResult is one ANN match joined back to its owning entity.
type SearchResult struct {
	EntityID     string
	Entity       entity.EntityType
	Name         string
	Qualified    string
	RepositoryID string
	FilePath     string
	LineStart    int
	LineEnd      int
	Signature    string
	Docstring    string
	Distance     float64
}

// SearchFilter narrows a KNN search to a repository, language, and/or
// entity type.
type SearchFilter struct {
	RepositoryID string
	Language     string
	EntityType   entity.EntityType
}

// SearchKNN runs the HNSW approximate-nearest-neighbor query over
// entity_vector, joined back to code_entity, ordered by distance
// (grounded on pkg/tools/semantic.go's executeHNSWQuery — same tilde
// query shape, renamed relations).
func (s *Store) SearchKNN(ctx context.Context, queryEmbedding []float64, k, ef int) ([]SearchResult, error) {
	return s.SearchKNNFiltered(ctx, queryEmbedding, k, ef, SearchFilter{})
}

// SearchKNNFiltered is SearchKNN plus optional repository/language/
// entity_type filters, applied as extra CozoScript conjuncts so the
// ANN index still drives the query.
func (s *Store) SearchKNNFiltered(ctx context.Context, queryEmbedding []float64, k, ef int, filter SearchFilter) ([]SearchResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if k <= 0 {
		k = 10
	}
	if ef <= 0 || ef < k {
		ef = k * 2
		if ef < 50 {
			ef = 50
		}
	}

	conjuncts := ""
	params := map[string]any{}
	if filter.RepositoryID != "" {
		conjuncts += `, repository_id = $repository_id`
		params["repository_id"] = filter.RepositoryID
	}
	if filter.Language != "" {
		conjuncts += `, language = $language`
		params["language"] = filter.Language
	}
	if filter.EntityType != "" {
		conjuncts += `, entity_type = $entity_type`
		params["entity_type"] = string(filter.EntityType)
	}

	script := fmt.Sprintf(`?[entity_id, entity_type, name, qualified_name, repository_id, path, line_start, line_end, signature, docstring, distance] :=
		~entity_vector:ann_idx { entity_id | query: q, k: %d, ef: %d, bind_distance: distance },
		q = %s,
		*code_entity { id: entity_id, repository_id, entity_type, name, qualified_name, file_id, line_start, line_end, signature, docstring, language }%s,
		*indexed_file { id: file_id, path }
		:order distance
		:limit %d`, k, ef, formatVectorLiteral(queryEmbedding), conjuncts, k)

	result, err := s.backend.Query(ctx, script, params)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	out := make([]SearchResult, 0, len(result.Rows))
	for _, row := range result.Rows {
		out = append(out, SearchResult{
			EntityID:     scalarStr(row, 0),
			Entity:       entity.EntityType(scalarStr(row, 1)),
			Name:         scalarStr(row, 2),
			Qualified:    scalarStr(row, 3),
			RepositoryID: scalarStr(row, 4),
			FilePath:     scalarStr(row, 5),
			LineStart:    scalarInt(row, 6),
			LineEnd:      scalarInt(row, 7),
			Signature:    scalarStr(row, 8),
			Docstring:    scalarStr(row, 9),
			Distance:     scalarFloat(row, 10),
		})
	}
	return out, nil
}

// formatVectorLiteral formats a float64 slice as a CozoDB vec()
// literal (grounded on pkg/tools/semantic.go's formatEmbeddingForCozoDB).
func formatVectorLiteral(embedding []float64) string {
	var buf bytes.Buffer
	buf.WriteString("vec([")
	for i, v := range embedding {
		if i > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, "%.6f", v)
	}
	buf.WriteString("])")
	return buf.String()
}
