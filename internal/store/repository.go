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
	"fmt"
)

// RepositoryStatus is the closed set of Repository lifecycle states.
type RepositoryStatus string

const (
	RepoPending  RepositoryStatus = "pending"
	RepoIndexing RepositoryStatus = "indexing"
	RepoWatching RepositoryStatus = "watching"
	RepoError    RepositoryStatus = "error"
	RepoPaused   RepositoryStatus = "paused"
)

// Repository mirrors the `repository` relation.
type Repository struct {
	ID                string
	Name              string
	RootPath          string
	Status            RepositoryStatus
	FileCount         int
	EntityCount       int
	RelationCount     int
	LastIndexedAt     float64
	LastIndexedCommit string
	ErrorMessage      string
}

func rowToRepository(row []any) *Repository {
	return &Repository{
		ID:                scalarStr(row, 0),
		Name:              scalarStr(row, 1),
		RootPath:          scalarStr(row, 2),
		Status:            RepositoryStatus(scalarStr(row, 3)),
		FileCount:         scalarInt(row, 4),
		EntityCount:       scalarInt(row, 5),
		RelationCount:     scalarInt(row, 6),
		LastIndexedAt:     scalarFloat(row, 7),
		LastIndexedCommit: scalarStr(row, 8),
		ErrorMessage:      scalarStr(row, 9),
	}
}

const repositoryCols = "id, name, root_path, status, file_count, entity_count, relation_count, last_indexed_at, last_indexed_commit, error_message"

// UpsertRepository inserts a repository row, or fully overwrites an
// existing one with the same id. Callers needing a partial field
// update (status-only, counts-only) should use UpdateRepositoryStatus
// / UpdateRepositoryStats instead, which read-modify-write so untouched
// columns are never reset to their schema defaults.
func (s *Store) UpsertRepository(ctx context.Context, repo *Repository) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`?[%s] <- [[$id, $name, $root_path, $status, $file_count, $entity_count, $relation_count, $last_indexed_at, $last_indexed_commit, $error_message]]
		:put repository { %s }`, repositoryCols, repositoryCols)

	return s.backend.Execute(ctx, query, map[string]any{
		"id":                  repo.ID,
		"name":                repo.Name,
		"root_path":           repo.RootPath,
		"status":              string(repo.Status),
		"file_count":          repo.FileCount,
		"entity_count":        repo.EntityCount,
		"relation_count":      repo.RelationCount,
		"last_indexed_at":     repo.LastIndexedAt,
		"last_indexed_commit": repo.LastIndexedCommit,
		"error_message":       repo.ErrorMessage,
	})
}

// GetRepository looks up a repository by id.
func (s *Store) GetRepository(ctx context.Context, id string) (*Repository, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *repository{%s}, id = $id`, repositoryCols, repositoryCols),
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToRepository(result.Rows[0]), nil
}

// GetRepositoryByName looks up a repository by its unique name.
func (s *Store) GetRepositoryByName(ctx context.Context, name string) (*Repository, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *repository{%s}, name = $name`, repositoryCols, repositoryCols),
		map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("get repository by name: %w", err)
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return rowToRepository(result.Rows[0]), nil
}

// ListRepositories returns every repository row.
func (s *Store) ListRepositories(ctx context.Context) ([]*Repository, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.backend.Query(ctx, fmt.Sprintf(
		`?[%s] := *repository{%s}`, repositoryCols, repositoryCols), nil)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	repos := make([]*Repository, 0, len(result.Rows))
	for _, row := range result.Rows {
		repos = append(repos, rowToRepository(row))
	}
	return repos, nil
}

// UpdateRepositoryStatus transitions a repository's status, optionally
// setting an error message (cleared when status != error). The other
// columns are preserved by reading the row first.
func (s *Store) UpdateRepositoryStatus(ctx context.Context, id string, status RepositoryStatus, errorMessage string) error {
	repo, err := s.GetRepository(ctx, id)
	if err != nil {
		return err
	}
	repo.Status = status
	repo.ErrorMessage = errorMessage
	return s.UpsertRepository(ctx, repo)
}

// UpdateRepositoryStats recomputes a repository's aggregate counts and
// last-indexed bookkeeping.
func (s *Store) UpdateRepositoryStats(ctx context.Context, id string, fileCount, entityCount, relationCount int, lastIndexedCommit string) error {
	repo, err := s.GetRepository(ctx, id)
	if err != nil {
		return err
	}
	repo.FileCount = fileCount
	repo.EntityCount = entityCount
	repo.RelationCount = relationCount
	repo.LastIndexedAt = now()
	if lastIndexedCommit != "" {
		repo.LastIndexedCommit = lastIndexedCommit
	}
	return s.UpsertRepository(ctx, repo)
}

// DeleteRepository removes a repository row. Callers are responsible
// for cascading file/entity/relation deletion beforehand.
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.backend.Execute(ctx, `?[id] <- [[$id]] :rm repository { id }`, map[string]any{"id": id})
}

// RecomputeRepositoryStats recounts a repository's files (excluding
// deleted), entities, and relations directly from live rows and writes
// the result, the "recompute repo aggregates from live counts" step
// the Indexing Service runs after every processed file.
func (s *Store) RecomputeRepositoryStats(ctx context.Context, repositoryID string) error {
	fileCount, err := s.countNonDeletedFiles(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("count files for %s: %w", repositoryID, err)
	}
	entityCount, err := s.countEntitiesByRepository(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("count entities for %s: %w", repositoryID, err)
	}
	relationCount, err := s.countRelationsByRepository(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("count relations for %s: %w", repositoryID, err)
	}
	return s.UpdateRepositoryStats(ctx, repositoryID, fileCount, entityCount, relationCount, "")
}

func (s *Store) countNonDeletedFiles(ctx context.Context, repositoryID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	result, err := s.backend.Query(ctx,
		`?[count(id)] := *indexed_file{id, repository_id: $repository_id, status}, status != "deleted"`,
		map[string]any{"repository_id": repositoryID})
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return scalarInt(result.Rows[0], 0), nil
}

func (s *Store) countEntitiesByRepository(ctx context.Context, repositoryID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	result, err := s.backend.Query(ctx,
		`?[count(id)] := *code_entity{id, repository_id: $repository_id}`,
		map[string]any{"repository_id": repositoryID})
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return scalarInt(result.Rows[0], 0), nil
}

// countRelationsByRepository counts relations whose source entity
// belongs to repositoryID. Relation rows carry no repository_id of
// their own (is_cross_repository already captures the cross-repo case
// via source/target comparison at write time), so this joins through
// code_entity.
func (s *Store) countRelationsByRepository(ctx context.Context, repositoryID string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	result, err := s.backend.Query(ctx,
		`?[count(rid)] := *relation{id: rid, source_id}, *code_entity{id: source_id, repository_id: $repository_id}`,
		map[string]any{"repository_id": repositoryID})
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return scalarInt(result.Rows[0], 0), nil
}
