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

package tools

import (
	"context"
	"fmt"

	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
)

// SearchCodeArgs is search_code's input.
type SearchCodeArgs struct {
	Query      string
	Limit      int
	Repository string // repository name, not id; resolved internally
	Language   string
	EntityType string
}

// SearchCodeMatch is one ranked result.
type SearchCodeMatch struct {
	ID            string
	Repository    string
	FilePath      string
	QualifiedName string
	SimpleName    string
	EntityType    entity.EntityType
	LineStart     int
	LineEnd       int
	Score         float64
	Signature     string
	Docstring     string
	Snippet       string
}

// SearchCodeResult is search_code's output.
type SearchCodeResult struct {
	Matches []SearchCodeMatch
}

// SearchCode embeds the query text and runs an HNSW nearest-neighbor
// search over entity_vector, optionally filtered by repository name,
// language, or entity type.
func SearchCode(ctx context.Context, st *store.Store, embedder *embedding.Client, args SearchCodeArgs) (*SearchCodeResult, error) {
	if args.Query == "" {
		return nil, fmt.Errorf("search_code: query is required")
	}
	limit := clamp(args.Limit, 10, 100)

	embedded := embedder.EmbedBatch(ctx, []string{args.Query})
	if embedded[0].Err != nil {
		return nil, fmt.Errorf("search_code: embed query: %w", embedded[0].Err)
	}
	query := float64sFrom(embedded[0].Vector)

	filter := store.SearchFilter{Language: args.Language, EntityType: entity.EntityType(args.EntityType)}
	if args.Repository != "" {
		repo, err := st.GetRepositoryByName(ctx, args.Repository)
		if err != nil {
			return nil, fmt.Errorf("search_code: unknown repository %q: %w", args.Repository, err)
		}
		filter.RepositoryID = repo.ID
	}

	rows, err := st.SearchKNNFiltered(ctx, query, limit, 0, filter)
	if err != nil {
		return nil, fmt.Errorf("search_code: %w", err)
	}

	repoNames := map[string]string{}
	matches := make([]SearchCodeMatch, 0, len(rows))
	for _, row := range rows {
		name, ok := repoNames[row.RepositoryID]
		if !ok {
			if repo, err := st.GetRepository(ctx, row.RepositoryID); err == nil {
				name = repo.Name
			}
			repoNames[row.RepositoryID] = name
		}
		matches = append(matches, SearchCodeMatch{
			ID:            row.EntityID,
			Repository:    name,
			FilePath:      row.FilePath,
			QualifiedName: row.Qualified,
			SimpleName:    entity.SimpleName(row.Qualified, "."),
			EntityType:    row.Entity,
			LineStart:     row.LineStart,
			LineEnd:       row.LineEnd,
			Score:         scoreFromDistance(row.Distance),
			Signature:     row.Signature,
			Docstring:     row.Docstring,
			Snippet:       snippetFromDocstring(row.Docstring),
		})
	}
	return &SearchCodeResult{Matches: matches}, nil
}

// scoreFromDistance maps a cosine distance in [0, 2] onto a similarity
// score in [0, 1] via 1 - distance/2, valid for normalized embeddings.
func scoreFromDistance(distance float64) float64 {
	score := 1.0 - distance/2.0
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// snippetFromDocstring truncates a docstring to a short preview; full
// source text is available separately via find_symbol's include_source.
func snippetFromDocstring(docstring string) string {
	const maxLen = 160
	if len(docstring) <= maxLen {
		return docstring
	}
	return docstring[:maxLen] + "..."
}

func float64sFrom(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
