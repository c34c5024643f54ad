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
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mrcis/mrcis/internal/entity"
)

// regexSuffixPattern anchors suffix as a literal match at the end of
// the string, for use with CozoScript's regex_matches.
func regexSuffixPattern(suffix string) string {
	return regexp.QuoteMeta(suffix) + "$"
}

const codeEntityCols = "id, repository_id, file_id, entity_type, name, qualified_name, language, line_start, line_end, col_start, col_end, signature, docstring, source_text, visibility, is_exported, decorators, vector_id, variant_json"

// newVariant allocates the zero value for an EntityType so its variant
// JSON can be unmarshaled back into a typed struct (mirrors the closed
// sum in internal/entity).
func newVariant(t entity.EntityType) entity.Entity {
	switch t {
	case entity.TypeClass:
		return &entity.Class{}
	case entity.TypeInterface:
		return &entity.Interface{}
	case entity.TypeMethod:
		return &entity.Method{}
	case entity.TypeFunction:
		return &entity.Function{}
	case entity.TypeVariable:
		return &entity.Variable{}
	case entity.TypeImport:
		return &entity.Import{}
	case entity.TypeTask:
		return &entity.Task{}
	default:
		return &entity.Module{}
	}
}

func rowToEntity(row []any) (entity.Entity, error) {
	hdr := entity.Header{
		ID:            scalarStr(row, 0),
		RepositoryID:  scalarStr(row, 1),
		FileID:        scalarStr(row, 2),
		EntityType:    entity.EntityType(scalarStr(row, 3)),
		Name:          scalarStr(row, 4),
		QualifiedName: scalarStr(row, 5),
		Language:      scalarStr(row, 6),
		LineStart:     scalarInt(row, 7),
		LineEnd:       scalarInt(row, 8),
		Signature:     scalarStr(row, 11),
		Docstring:     scalarStr(row, 12),
		SourceText:    scalarStr(row, 13),
		Visibility:    entity.Visibility(scalarStr(row, 14)),
		IsExported:    scalarBool(row, 15),
		VectorID:      scalarStr(row, 17),
	}
	if col := scalarInt(row, 9); col >= 0 {
		v := col
		hdr.ColStart = &v
	}
	if col := scalarInt(row, 10); col >= 0 {
		v := col
		hdr.ColEnd = &v
	}
	if decorators := scalarStr(row, 16); decorators != "" {
		_ = json.Unmarshal([]byte(decorators), &hdr.Decorators)
	}

	v := newVariant(hdr.EntityType)
	if variantJSON := scalarStr(row, 18); variantJSON != "" && variantJSON != "{}" {
		if err := json.Unmarshal([]byte(variantJSON), v); err != nil {
			return nil, fmt.Errorf("unmarshal variant json for %s: %w", hdr.ID, err)
		}
	}
	*v.Header() = hdr
	return v, nil
}

func entityParams(e entity.Entity) (map[string]any, error) {
	hdr := e.Header()

	colStart, colEnd := -1, -1
	if hdr.ColStart != nil {
		colStart = *hdr.ColStart
	}
	if hdr.ColEnd != nil {
		colEnd = *hdr.ColEnd
	}

	decorators := "[]"
	if len(hdr.Decorators) > 0 {
		b, err := json.Marshal(hdr.Decorators)
		if err != nil {
			return nil, fmt.Errorf("marshal decorators: %w", err)
		}
		decorators = string(b)
	}

	variantJSON := "{}"
	if b, err := json.Marshal(e.Variant()); err == nil {
		variantJSON = string(b)
	} else {
		return nil, fmt.Errorf("marshal variant: %w", err)
	}

	return map[string]any{
		"id":             hdr.ID,
		"repository_id":  hdr.RepositoryID,
		"file_id":        hdr.FileID,
		"entity_type":    string(hdr.EntityType),
		"name":           hdr.Name,
		"qualified_name": hdr.QualifiedName,
		"language":       hdr.Language,
		"line_start":     hdr.LineStart,
		"line_end":       hdr.LineEnd,
		"col_start":      colStart,
		"col_end":        colEnd,
		"signature":      hdr.Signature,
		"docstring":      hdr.Docstring,
		"source_text":    hdr.SourceText,
		"visibility":     string(hdr.Visibility),
		"is_exported":    hdr.IsExported,
		"decorators":     decorators,
		"vector_id":      hdr.VectorID,
		"variant_json":   variantJSON,
	}, nil
}

// InsertEntities writes a batch of extracted entities. Each is put
// individually rather than as one multi-row
// insert so a single malformed variant doesn't fail the whole file.
func (s *Store) InsertEntities(ctx context.Context, entities []entity.Entity) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`?[%s] <- [[$id, $repository_id, $file_id, $entity_type, $name, $qualified_name, $language, $line_start, $line_end, $col_start, $col_end, $signature, $docstring, $source_text, $visibility, $is_exported, $decorators, $vector_id, $variant_json]]
		:put code_entity { %s }`, codeEntityCols, codeEntityCols)

	for _, e := range entities {
		params, err := entityParams(e)
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.Header().ID, err)
		}
		if err := s.backend.Execute(ctx, query, params); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.Header().ID, err)
		}
	}
	return nil
}

// DeleteEntitiesForFile removes every entity belonging to a file and
// returns how many were deleted. Cascades to
// relations and pending references that mention the deleted entities.
func (s *Store) DeleteEntitiesForFile(ctx context.Context, fileID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, `?[id] := *code_entity{id, file_id: $file_id}`,
		map[string]any{"file_id": fileID})
	if err != nil {
		return 0, fmt.Errorf("find entities for file: %w", err)
	}

	count := 0
	for _, row := range result.Rows {
		id := scalarStr(row, 0)
		if err := s.deleteEntityCascade(ctx, id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) deleteEntityCascade(ctx context.Context, entityID string) error {
	if err := s.backend.Execute(ctx, `?[id] := *relation{id, source_id}, source_id = $entity_id
		:rm relation { id }`, map[string]any{"entity_id": entityID}); err != nil {
		return fmt.Errorf("cascade delete outgoing relations: %w", err)
	}
	if err := s.backend.Execute(ctx, `?[id] := *relation{id, target_id}, target_id = $entity_id
		:rm relation { id }`, map[string]any{"entity_id": entityID}); err != nil {
		return fmt.Errorf("cascade delete incoming relations: %w", err)
	}
	if err := s.backend.Execute(ctx, `?[id] := *pending_reference{id, source_entity_id}, source_entity_id = $entity_id
		:rm pending_reference { id }`, map[string]any{"entity_id": entityID}); err != nil {
		return fmt.Errorf("cascade delete pending references: %w", err)
	}
	return s.backend.Execute(ctx, `?[id] <- [[$id]] :rm code_entity { id }`, map[string]any{"id": entityID})
}

// GetEntity looks up a code entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (entity.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *code_entity{%s}, id = $id`, codeEntityCols, codeEntityCols),
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToEntity(result.Rows[0])
}

// GetEntityByQualifiedName is the exact-match tier of the resolver's
// lookup chain.
func (s *Store) GetEntityByQualifiedName(ctx context.Context, qualifiedName string) (entity.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *code_entity{%s}, qualified_name = $qualified_name`, codeEntityCols, codeEntityCols),
		map[string]any{"qualified_name": qualifiedName})
	if err != nil {
		return nil, fmt.Errorf("get entity by qualified name: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToEntity(result.Rows[0])
}

// GetEntitiesBySuffix is the suffix-match tier of the resolver's lookup
// chain: every entity whose qualified_name ends
// with suffix, capped at limit.
func (s *Store) GetEntitiesBySuffix(ctx context.Context, suffix string, limit int) ([]entity.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *code_entity{%s}, regex_matches(qualified_name, $suffix_pattern)
		:limit %d`, codeEntityCols, codeEntityCols, limit),
		map[string]any{"suffix_pattern": regexSuffixPattern(suffix)})
	if err != nil {
		return nil, fmt.Errorf("get entities by suffix: %w", err)
	}
	entities := make([]entity.Entity, 0, len(result.Rows))
	for _, row := range result.Rows {
		e, err := rowToEntity(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// GetEntitiesForFile returns every entity extracted from a file.
func (s *Store) GetEntitiesForFile(ctx context.Context, fileID string) ([]entity.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *code_entity{%s}, file_id = $file_id`, codeEntityCols, codeEntityCols),
		map[string]any{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("get entities for file: %w", err)
	}
	entities := make([]entity.Entity, 0, len(result.Rows))
	for _, row := range result.Rows {
		e, err := rowToEntity(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// ListDistinctEntityNames returns up to limit distinct qualified names
// across the whole instance, the candidate pool for find_usages'
// fuzzy did-you-mean suggestion (pkg/tools).
func (s *Store) ListDistinctEntityNames(ctx context.Context, limit int) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 5000
	}
	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[qualified_name] := *code_entity{qualified_name} :limit %d`, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("list distinct entity names: %w", err)
	}
	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		names = append(names, scalarStr(row, 0))
	}
	return names, nil
}

// UpdateEntityVectorID stamps an entity with the vector_id assigned by
// the embedding/vector upsert step.
func (s *Store) UpdateEntityVectorID(ctx context.Context, id, vectorID string) error {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	e.Header().VectorID = vectorID

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	params, err := entityParams(e)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`?[%s] <- [[$id, $repository_id, $file_id, $entity_type, $name, $qualified_name, $language, $line_start, $line_end, $col_start, $col_end, $signature, $docstring, $source_text, $visibility, $is_exported, $decorators, $vector_id, $variant_json]]
		:put code_entity { %s }`, codeEntityCols, codeEntityCols)
	return s.backend.Execute(ctx, query, params)
}

const relationCols = "id, source_id, target_id, relation_type, is_cross_repository, line_number, context_snippet, weight"

func rowToRelation(row []any) *entity.Relation {
	r := &entity.Relation{
		ID:                scalarStr(row, 0),
		SourceID:          scalarStr(row, 1),
		TargetID:          scalarStr(row, 2),
		RelationType:      entity.RelationType(scalarStr(row, 3)),
		IsCrossRepository: scalarBool(row, 4),
		ContextSnippet:    scalarStr(row, 6),
		Weight:            scalarFloat(row, 7),
	}
	if ln := scalarInt(row, 5); ln >= 0 {
		v := ln
		r.LineNumber = &v
	}
	return r
}

func relationParams(r *entity.Relation) map[string]any {
	lineNumber := -1
	if r.LineNumber != nil {
		lineNumber = *r.LineNumber
	}
	return map[string]any{
		"id":                  r.ID,
		"source_id":           r.SourceID,
		"target_id":           r.TargetID,
		"relation_type":       string(r.RelationType),
		"is_cross_repository": r.IsCrossRepository,
		"line_number":         lineNumber,
		"context_snippet":     r.ContextSnippet,
		"weight":              r.Weight,
	}
}

// InsertRelation writes a resolved relation edge.
func (s *Store) InsertRelation(ctx context.Context, r *entity.Relation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`?[%s] <- [[$id, $source_id, $target_id, $relation_type, $is_cross_repository, $line_number, $context_snippet, $weight]]
		:put relation { %s }`, relationCols, relationCols)
	return s.backend.Execute(ctx, query, relationParams(r))
}

// GetIncomingRelations returns every relation targeting entityID.
func (s *Store) GetIncomingRelations(ctx context.Context, entityID string) ([]*entity.Relation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *relation{%s}, target_id = $entity_id`, relationCols, relationCols),
		map[string]any{"entity_id": entityID})
	if err != nil {
		return nil, fmt.Errorf("get incoming relations: %w", err)
	}
	relations := make([]*entity.Relation, 0, len(result.Rows))
	for _, row := range result.Rows {
		relations = append(relations, rowToRelation(row))
	}
	return relations, nil
}

// GetOutgoingRelations returns every relation sourced from entityID.
func (s *Store) GetOutgoingRelations(ctx context.Context, entityID string) ([]*entity.Relation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *relation{%s}, source_id = $entity_id`, relationCols, relationCols),
		map[string]any{"entity_id": entityID})
	if err != nil {
		return nil, fmt.Errorf("get outgoing relations: %w", err)
	}
	relations := make([]*entity.Relation, 0, len(result.Rows))
	for _, row := range result.Rows {
		relations = append(relations, rowToRelation(row))
	}
	return relations, nil
}

const pendingReferenceCols = "id, source_entity_id, source_qualified_name, source_repository_id, target_qualified_name, relation_type, status, attempts, resolved_target_id, line_number, context_snippet, receiver_expr, created_seq"

func rowToPendingReference(row []any) *entity.PendingReference {
	p := &entity.PendingReference{
		ID:                  scalarStr(row, 0),
		SourceEntityID:      scalarStr(row, 1),
		SourceQualifiedName: scalarStr(row, 2),
		SourceRepositoryID:  scalarStr(row, 3),
		TargetQualifiedName: scalarStr(row, 4),
		RelationType:        entity.RelationType(scalarStr(row, 5)),
		Status:              entity.PendingReferenceStatus(scalarStr(row, 6)),
		Attempts:            scalarInt(row, 7),
		ResolvedTargetID:    scalarStr(row, 8),
		ContextSnippet:      scalarStr(row, 10),
		ReceiverExpr:        scalarStr(row, 11),
		CreatedSeq:          int64(scalarInt(row, 12)),
	}
	if ln := scalarInt(row, 9); ln >= 0 {
		v := ln
		p.LineNumber = &v
	}
	return p
}

func pendingReferenceParams(p *entity.PendingReference) map[string]any {
	lineNumber := -1
	if p.LineNumber != nil {
		lineNumber = *p.LineNumber
	}
	return map[string]any{
		"id":                     p.ID,
		"source_entity_id":       p.SourceEntityID,
		"source_qualified_name":  p.SourceQualifiedName,
		"source_repository_id":   p.SourceRepositoryID,
		"target_qualified_name":  p.TargetQualifiedName,
		"relation_type":          string(p.RelationType),
		"status":                 string(p.Status),
		"attempts":               p.Attempts,
		"resolved_target_id":     p.ResolvedTargetID,
		"line_number":            lineNumber,
		"context_snippet":        p.ContextSnippet,
		"receiver_expr":          p.ReceiverExpr,
		"created_seq":            p.CreatedSeq,
	}
}

func (s *Store) putPendingReference(ctx context.Context, p *entity.PendingReference) error {
	query := fmt.Sprintf(`?[%s] <- [[$id, $source_entity_id, $source_qualified_name, $source_repository_id, $target_qualified_name, $relation_type, $status, $attempts, $resolved_target_id, $line_number, $context_snippet, $receiver_expr, $created_seq]]
		:put pending_reference { %s }`, pendingReferenceCols, pendingReferenceCols)
	return s.backend.Execute(ctx, query, pendingReferenceParams(p))
}

// InsertPendingReferences writes a batch of unresolved references
// discovered during extraction, assigning each a
// monotonic created_seq so the resolver can process them FIFO.
func (s *Store) InsertPendingReferences(ctx context.Context, refs []*entity.PendingReference) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	s.pendingSeqMu.Lock()
	defer s.pendingSeqMu.Unlock()

	seq, err := s.nextPendingReferenceSeqLocked(ctx)
	if err != nil {
		return err
	}

	for _, p := range refs {
		if p.Status == "" {
			p.Status = entity.PendingStatusPending
		}
		if p.CreatedSeq == 0 {
			p.CreatedSeq = int64(seq)
			seq++
		}
		if err := s.putPendingReference(ctx, p); err != nil {
			return fmt.Errorf("insert pending reference %s: %w", p.ID, err)
		}
	}
	return nil
}

func (s *Store) nextPendingReferenceSeqLocked(ctx context.Context) (int, error) {
	result, err := s.backend.Query(ctx, `?[m] := *pending_reference{created_seq}, m = max(created_seq)`, nil)
	if err != nil {
		return 0, fmt.Errorf("get max pending reference seq: %w", err)
	}
	if len(result.Rows) == 0 || result.Rows[0][0] == nil {
		return 1, nil
	}
	return scalarInt(result.Rows[0], 0) + 1, nil
}

// GetPendingReferences returns up to limit pending references ordered
// by created_seq (FIFO), the resolver's per-cycle work batch.
func (s *Store) GetPendingReferences(ctx context.Context, limit int) ([]*entity.PendingReference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *pending_reference{%s}, status = "pending"
		:order created_seq
		:limit %d`, pendingReferenceCols, pendingReferenceCols, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("get pending references: %w", err)
	}
	refs := make([]*entity.PendingReference, 0, len(result.Rows))
	for _, row := range result.Rows {
		refs = append(refs, rowToPendingReference(row))
	}
	return refs, nil
}

// ResolveReference atomically promotes a pending reference to a
// Relation: it writes the Relation row and marks the pending_reference
// resolved with resolved_target_id set, so readers never observe one
// without the other.
func (s *Store) ResolveReference(ctx context.Context, refID, targetEntityID string, rel *entity.Relation) error {
	ref, err := s.GetPendingReference(ctx, refID)
	if err != nil {
		return err
	}

	if err := s.InsertRelation(ctx, rel); err != nil {
		return fmt.Errorf("resolve reference: insert relation: %w", err)
	}

	ref.Status = entity.PendingStatusResolved
	ref.ResolvedTargetID = targetEntityID

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.putPendingReference(ctx, ref)
}

// GetPendingReference looks up a single pending reference by id.
func (s *Store) GetPendingReference(ctx context.Context, id string) (*entity.PendingReference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *pending_reference{%s}, id = $id`, pendingReferenceCols, pendingReferenceCols),
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get pending reference: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToPendingReference(result.Rows[0]), nil
}

// MarkReferenceUnresolved increments the attempt counter; at or above
// maxAttempts it transitions the reference to unresolved so the
// resolver stops retrying it every cycle.
func (s *Store) MarkReferenceUnresolved(ctx context.Context, id string, maxAttempts int) error {
	ref, err := s.GetPendingReference(ctx, id)
	if err != nil {
		return err
	}
	ref.Attempts++
	if ref.Attempts >= maxAttempts {
		ref.Status = entity.PendingStatusUnresolved
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return s.putPendingReference(ctx, ref)
}
