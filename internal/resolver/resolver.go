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

// Package resolver implements the reference resolver: the tiered
// disambiguation algorithm that matches a
// PendingReference's target pattern against materialized entities and
// promotes the unique survivor to a resolved Relation. This is the
// most load-bearing algorithm in the system; the five steps run in a
// fixed order so resolution stays a pure function of its inputs.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/metrics"
	"github.com/mrcis/mrcis/internal/store"
)

// preferredEntityTypes maps a relation type to the entity types a
// candidate should preferentially be, tier (c) of disambiguation.
var preferredEntityTypes = map[entity.RelationType][]entity.EntityType{
	entity.RelationExtends:      {entity.TypeClass, entity.TypeInterface},
	entity.RelationImplements:   {entity.TypeInterface},
	entity.RelationCalls:        {entity.TypeFunction, entity.TypeMethod},
	entity.RelationImports:      {entity.TypeModule, entity.TypeClass, entity.TypeFunction},
	entity.RelationInstantiates: {entity.TypeClass},
	entity.RelationUsesType:     {entity.TypeClass, entity.TypeInterface},
}

// Resolver runs resolution passes against a Store. It holds no
// scheduling state of its own — internal/indexing invokes ResolveBatch
// synchronously after each file, and internal/runtime additionally
// drives it on a timer.
type Resolver struct {
	store       *store.Store
	maxAttempts int
}

// New builds a Resolver. maxAttempts bounds how many passes a
// reference survives before being marked unresolved.
func New(st *store.Store, maxAttempts int) *Resolver {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Resolver{store: st, maxAttempts: maxAttempts}
}

// ResolveBatch runs one pass over up to limit pending references in
// creation order, returning how many were
// promoted to resolved relations.
func (r *Resolver) ResolveBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	started := time.Now()
	refs, err := r.store.GetPendingReferences(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch pending references: %w", err)
	}

	resolved, unresolved := 0, 0
	for _, ref := range refs {
		ok, err := r.resolveOne(ctx, ref)
		if err != nil {
			metrics.RecordResolverBatch(resolved, unresolved, time.Since(started).Seconds())
			return resolved, fmt.Errorf("resolve reference %s: %w", ref.ID, err)
		}
		if ok {
			resolved++
		} else if ref.Attempts+1 >= r.maxAttempts {
			unresolved++
		}
	}
	metrics.RecordResolverBatch(resolved, unresolved, time.Since(started).Seconds())
	return resolved, nil
}

// Run drives ResolveBatch on a ticker until ctx is cancelled — the
// timer half of the resolver's schedule; the indexing service runs the
// synchronous half after each processed file.
func (r *Resolver) Run(ctx context.Context, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.ResolveBatch(ctx, batchSize)
		}
	}
}

// resolveOne resolves, filters, disambiguates, and promotes a single
// pending reference. It returns true if the reference was promoted.
func (r *Resolver) resolveOne(ctx context.Context, ref *entity.PendingReference) (bool, error) {
	candidates, err := r.candidatesFor(ctx, ref.TargetQualifiedName)
	if err != nil {
		return false, err
	}

	// Step 3: receiver-aware filter, only applied when ambiguous.
	if ref.ReceiverExpr != "" && len(candidates) > 1 {
		filtered := filterByReceiver(candidates, ref.ReceiverExpr)
		if len(filtered) == 0 {
			// Abandon this pass rather than resolve to a wrong target;
			// do not burn an attempt, since the candidate set may
			// still change as more files are indexed.
			return false, nil
		}
		candidates = filtered
	}

	// Step 4: disambiguation tiers, each narrowing until one remains.
	candidates = narrowBySameRepository(candidates, ref.SourceRepositoryID)
	candidates = narrowByLongestSuffix(candidates, ref.TargetQualifiedName)
	candidates = narrowByPreferredType(candidates, ref.RelationType)
	candidates = narrowByShortestQualifiedName(candidates)

	if len(candidates) != 1 {
		if err := r.store.MarkReferenceUnresolved(ctx, ref.ID, r.maxAttempts); err != nil {
			return false, fmt.Errorf("mark unresolved: %w", err)
		}
		return false, nil
	}

	target := candidates[0]
	hdr := target.Header()
	rel := &entity.Relation{
		ID:                entity.NewID("rel", ref.SourceEntityID, hdr.ID, string(ref.RelationType)),
		SourceID:          ref.SourceEntityID,
		TargetID:          hdr.ID,
		RelationType:      ref.RelationType,
		IsCrossRepository: hdr.RepositoryID != ref.SourceRepositoryID,
		LineNumber:        ref.LineNumber,
		ContextSnippet:    ref.ContextSnippet,
		Weight:            1.0,
	}
	if err := r.store.ResolveReference(ctx, ref.ID, hdr.ID, rel); err != nil {
		return false, fmt.Errorf("promote reference: %w", err)
	}
	return true, nil
}

// candidatesFor is step 2: exact match on qualified_name, falling back
// to a suffix match using the last dotted segment (or the whole
// pattern when it has none).
func (r *Resolver) candidatesFor(ctx context.Context, targetPattern string) ([]entity.Entity, error) {
	exact, err := r.store.GetEntityByQualifiedName(ctx, targetPattern)
	if err == nil {
		return []entity.Entity{exact}, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	suffix := targetPattern
	if idx := strings.LastIndex(targetPattern, "."); idx >= 0 {
		suffix = targetPattern[idx+1:]
	}
	return r.store.GetEntitiesBySuffix(ctx, suffix, 50)
}

// filterByReceiver converts the last segment of receiverExpr from
// snake_case to PascalCase and keeps only candidates whose qualified
// name case-insensitively contains that token.
func filterByReceiver(candidates []entity.Entity, receiverExpr string) []entity.Entity {
	segment := receiverExpr
	if idx := strings.LastIndexAny(receiverExpr, ".:"); idx >= 0 {
		segment = receiverExpr[idx+1:]
	}
	token := strings.ToLower(snakeToPascal(segment))

	out := make([]entity.Entity, 0, len(candidates))
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Header().QualifiedName), token) {
			out = append(out, c)
		}
	}
	return out
}

// snakeToPascal converts "foo_bar" to "FooBar"; a segment with no
// underscore is returned with only its first rune capitalized.
func snakeToPascal(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// narrowBySameRepository is disambiguation tier (a): prefer candidates
// in the referring entity's own repository.
func narrowBySameRepository(candidates []entity.Entity, sourceRepositoryID string) []entity.Entity {
	if len(candidates) <= 1 {
		return candidates
	}
	var same []entity.Entity
	for _, c := range candidates {
		if c.Header().RepositoryID == sourceRepositoryID {
			same = append(same, c)
		}
	}
	if len(same) > 0 {
		return same
	}
	return candidates
}

// narrowByLongestSuffix is disambiguation tier (b): prefer candidates
// whose qualified_name ends with the full target pattern, preferring
// the longest such suffix match among ties.
func narrowByLongestSuffix(candidates []entity.Entity, targetPattern string) []entity.Entity {
	if len(candidates) <= 1 {
		return candidates
	}
	var matching []entity.Entity
	for _, c := range candidates {
		if strings.HasSuffix(c.Header().QualifiedName, targetPattern) {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return candidates
	}
	best := len(matching[0].Header().QualifiedName)
	longest := []entity.Entity{matching[0]}
	for _, c := range matching[1:] {
		n := len(c.Header().QualifiedName)
		switch {
		case n > best:
			best = n
			longest = []entity.Entity{c}
		case n == best:
			longest = append(longest, c)
		}
	}
	return longest
}

// narrowByPreferredType is disambiguation tier (c): prefer candidates
// whose entity_type matches the relation type's preferred set.
func narrowByPreferredType(candidates []entity.Entity, relType entity.RelationType) []entity.Entity {
	if len(candidates) <= 1 {
		return candidates
	}
	preferred, ok := preferredEntityTypes[relType]
	if !ok {
		return candidates
	}
	want := make(map[entity.EntityType]bool, len(preferred))
	for _, t := range preferred {
		want[t] = true
	}
	var matching []entity.Entity
	for _, c := range candidates {
		if want[c.Header().EntityType] {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return candidates
	}
	return matching
}

// narrowByShortestQualifiedName is disambiguation tier (d): prefer the
// most direct definition (shortest qualified_name) among remaining ties.
func narrowByShortestQualifiedName(candidates []entity.Entity) []entity.Entity {
	if len(candidates) <= 1 {
		return candidates
	}
	shortest := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.Header().QualifiedName) < len(shortest.Header().QualifiedName) {
			shortest = c
		}
	}
	var tied []entity.Entity
	for _, c := range candidates {
		if len(c.Header().QualifiedName) == len(shortest.Header().QualifiedName) {
			tied = append(tied, c)
		}
	}
	return tied
}
