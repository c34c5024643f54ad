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

	"github.com/hbollon/go-edlib"

	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
)

// ReferenceEdge is one relation edge joined back to its file location.
type ReferenceEdge struct {
	FilePath       string
	Repository     string
	LineNumber     int
	RelationType   entity.RelationType
	ContextSnippet string
	SourceEntity   string // qualified name of the other endpoint
}

// GetReferencesArgs is get_references' input.
type GetReferencesArgs struct {
	QualifiedName  string
	IncludeOutgoing bool
}

// GetReferencesResult is get_references' output: incoming edges
// (things that reference the symbol) always included, outgoing edges
// (things the symbol references) included only when requested, plus
// the raw counts of each.
type GetReferencesResult struct {
	Incoming        []ReferenceEdge
	Outgoing        []ReferenceEdge
	IncomingCount   int
	OutgoingCount   int
}

// GetReferences resolves qualifiedName to an entity (exact match only
// — find_usages is the fuzzy/suffix entry point) and returns its
// materialized relation edges.
func GetReferences(ctx context.Context, st *store.Store, args GetReferencesArgs) (*GetReferencesResult, error) {
	if args.QualifiedName == "" {
		return nil, fmt.Errorf("get_references: qualified_name is required")
	}
	target, err := st.GetEntityByQualifiedName(ctx, args.QualifiedName)
	if err != nil {
		return nil, fmt.Errorf("get_references: %w", err)
	}
	return referencesFor(ctx, st, target.Header().ID, args.IncludeOutgoing)
}

// FindUsagesArgs is find_usages' input.
type FindUsagesArgs struct {
	Symbol          string // simple or qualified name
	Repository      string // optional repository name filter
	IncludeOutgoing bool
}

// FindUsagesResult is find_usages' output, same shape as
// get_references plus the symbol actually resolved to (useful when the
// lookup fell back to a suffix or fuzzy match).
type FindUsagesResult struct {
	GetReferencesResult
	ResolvedSymbol  string
	DidYouMean      string // suggested symbol when no candidate matched
}

// FindUsages resolves symbol via suffix match, optionally narrowed to
// a repository, and
// falls back to a fuzzy did-you-mean suggestion (via go-edlib) when no
// suffix candidate exists at all, rather than silently returning
// nothing.
func FindUsages(ctx context.Context, st *store.Store, args FindUsagesArgs) (*FindUsagesResult, error) {
	if args.Symbol == "" {
		return nil, fmt.Errorf("find_usages: symbol is required")
	}

	candidates, err := st.GetEntitiesBySuffix(ctx, args.Symbol, 25)
	if err != nil {
		return nil, fmt.Errorf("find_usages: suffix search: %w", err)
	}
	if args.Repository != "" {
		repo, err := st.GetRepositoryByName(ctx, args.Repository)
		if err != nil {
			return nil, fmt.Errorf("find_usages: unknown repository %q: %w", args.Repository, err)
		}
		candidates = filterByRepository(candidates, repo.ID)
	}

	if len(candidates) == 0 {
		suggestion, serr := suggestSymbol(ctx, st, args.Symbol)
		if serr != nil {
			return nil, fmt.Errorf("find_usages: %w", serr)
		}
		return &FindUsagesResult{DidYouMean: suggestion}, nil
	}

	target := shortestQualifiedName(candidates)
	refs, err := referencesFor(ctx, st, target.Header().ID, args.IncludeOutgoing)
	if err != nil {
		return nil, err
	}
	return &FindUsagesResult{GetReferencesResult: *refs, ResolvedSymbol: target.Header().QualifiedName}, nil
}

func referencesFor(ctx context.Context, st *store.Store, entityID string, includeOutgoing bool) (*GetReferencesResult, error) {
	incomingRels, err := st.GetIncomingRelations(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get incoming relations: %w", err)
	}
	incoming := make([]ReferenceEdge, 0, len(incomingRels))
	for _, r := range incomingRels {
		edge, err := edgeFromRelation(ctx, st, r, r.SourceID)
		if err != nil {
			return nil, err
		}
		incoming = append(incoming, edge)
	}

	result := &GetReferencesResult{Incoming: incoming, IncomingCount: len(incoming)}
	if !includeOutgoing {
		outgoingRels, err := st.GetOutgoingRelations(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("get outgoing relations: %w", err)
		}
		result.OutgoingCount = len(outgoingRels)
		return result, nil
	}

	outgoingRels, err := st.GetOutgoingRelations(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get outgoing relations: %w", err)
	}
	outgoing := make([]ReferenceEdge, 0, len(outgoingRels))
	for _, r := range outgoingRels {
		edge, err := edgeFromRelation(ctx, st, r, r.TargetID)
		if err != nil {
			return nil, err
		}
		outgoing = append(outgoing, edge)
	}
	result.Outgoing = outgoing
	result.OutgoingCount = len(outgoing)
	return result, nil
}

func edgeFromRelation(ctx context.Context, st *store.Store, r *entity.Relation, otherEntityID string) (ReferenceEdge, error) {
	other, err := st.GetEntity(ctx, otherEntityID)
	if err != nil && err != store.ErrNotFound {
		return ReferenceEdge{}, fmt.Errorf("lookup relation endpoint: %w", err)
	}

	edge := ReferenceEdge{RelationType: r.RelationType, ContextSnippet: r.ContextSnippet}
	if r.LineNumber != nil {
		edge.LineNumber = *r.LineNumber
	}
	if other != nil {
		hdr := other.Header()
		edge.SourceEntity = hdr.QualifiedName
		if file, ferr := st.GetFile(ctx, hdr.FileID); ferr == nil {
			edge.FilePath = file.Path
		}
		if repo, rerr := st.GetRepository(ctx, hdr.RepositoryID); rerr == nil {
			edge.Repository = repo.Name
		}
	}
	return edge, nil
}

func filterByRepository(candidates []entity.Entity, repositoryID string) []entity.Entity {
	out := make([]entity.Entity, 0, len(candidates))
	for _, c := range candidates {
		if c.Header().RepositoryID == repositoryID {
			out = append(out, c)
		}
	}
	return out
}

func shortestQualifiedName(candidates []entity.Entity) entity.Entity {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.Header().QualifiedName) < len(best.Header().QualifiedName) {
			best = c
		}
	}
	return best
}

// suggestSymbol scans indexed symbol names for the closest
// Levenshtein match to query, so a typo'd symbol name
// still gets the user pointed at the right one instead of an empty
// result.
func suggestSymbol(ctx context.Context, st *store.Store, query string) (string, error) {
	names, err := st.ListDistinctEntityNames(ctx, 5000)
	if err != nil {
		return "", fmt.Errorf("list symbol names: %w", err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return edlib.FuzzySearch(query, names, edlib.Levenshtein)
}
