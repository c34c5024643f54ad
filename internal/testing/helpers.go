// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"context"
	"testing"

	"github.com/mrcis/mrcis/pkg/storage"
)

// SetupTestBackend creates an in-memory mrcis backend for testing.
// The backend is automatically cleaned up when the test finishes.
//
// This helper:
//   - Creates a temporary directory
//   - Initializes an in-memory CozoDB backend
//   - Ensures the mrcis schema is created
//   - Registers cleanup to close the backend
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    backend := testing.SetupTestBackend(t)
//
//	    // Backend is ready with the mrcis schema initialized
//	    testing.InsertTestEntity(t, backend, "ent1", "repo1", "file1", "function", "DoThing", "pkg.DoThing", "go", 10, 20)
//
//	    // Run your tests...
//	}
func SetupTestBackend(t *testing.T) *storage.EmbeddedBackend {
	t.Helper()

	// Use in-memory engine for fast tests
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		Engine:  "mem",
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create test backend: %v", err)
	}

	// Ensure schema is initialized
	if err := backend.EnsureSchema(); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	// Register cleanup
	t.Cleanup(func() {
		backend.Close()
	})

	return backend
}

// InsertTestRepository adds a test repository row to the database.
//
// Example:
//
//	testing.InsertTestRepository(t, backend, "repo1", "myrepo", "/src/myrepo", "ready")
func InsertTestRepository(t *testing.T, backend *storage.EmbeddedBackend, id, name, rootPath, status string) {
	t.Helper()

	ctx := context.Background()
	err := backend.Execute(ctx, `?[id, name, root_path, status] <- [[
		$id, $name, $root_path, $status
	]]
	:put repository { id, name, root_path, status }`, map[string]any{
		"id":        id,
		"name":      name,
		"root_path": rootPath,
		"status":    status,
	})

	if err != nil {
		t.Fatalf("failed to insert test repository: %v", err)
	}
}

// InsertTestFile adds a test indexed_file row to the database.
//
// Example:
//
//	testing.InsertTestFile(t, backend, "file_123", "repo1", "auth.go", "abc123", "go", 1234)
func InsertTestFile(t *testing.T, backend *storage.EmbeddedBackend, id, repositoryID, path, checksum, language string, fileSize int64) {
	t.Helper()

	ctx := context.Background()
	err := backend.Execute(ctx, `?[id, repository_id, path, checksum, file_size, language, status] <- [[
		$id, $repository_id, $path, $checksum, $file_size, $language, "indexed"
	]]
	:put indexed_file { id, repository_id, path, checksum, file_size, language, status }`, map[string]any{
		"id":            id,
		"repository_id": repositoryID,
		"path":          path,
		"checksum":      checksum,
		"file_size":     fileSize,
		"language":      language,
	})

	if err != nil {
		t.Fatalf("failed to insert test file: %v", err)
	}
}

// InsertTestEntity adds a test code_entity row to the database. This is a
// convenience helper for seeding test data across the class/interface/
// function/method/variable/import/module/task entity types.
//
// Example:
//
//	testing.InsertTestEntity(t, backend, "ent_123", "repo1", "file_123",
//	    "function", "HandleAuth", "auth.HandleAuth", "go", 10, 25)
func InsertTestEntity(t *testing.T, backend *storage.EmbeddedBackend, id, repositoryID, fileID, entityType, name, qualifiedName, language string, lineStart, lineEnd int) {
	t.Helper()

	ctx := context.Background()
	err := backend.Execute(ctx, `?[id, repository_id, file_id, entity_type, name, qualified_name, language, line_start, line_end] <- [[
		$id, $repository_id, $file_id, $entity_type, $name, $qualified_name, $language, $line_start, $line_end
	]]
	:put code_entity { id, repository_id, file_id, entity_type, name, qualified_name, language, line_start, line_end }`, map[string]any{
		"id":             id,
		"repository_id":  repositoryID,
		"file_id":        fileID,
		"entity_type":    entityType,
		"name":           name,
		"qualified_name": qualifiedName,
		"language":       language,
		"line_start":     lineStart,
		"line_end":       lineEnd,
	})

	if err != nil {
		t.Fatalf("failed to insert test entity: %v", err)
	}
}

// InsertTestRelation adds a test relation edge (source -> target) to the
// database, e.g. a "calls" or "imports" edge between two code_entity rows.
//
// Example:
//
//	testing.InsertTestRelation(t, backend, "rel_123", "caller_ent_id", "callee_ent_id", "calls")
func InsertTestRelation(t *testing.T, backend *storage.EmbeddedBackend, id, sourceID, targetID, relationType string) {
	t.Helper()

	ctx := context.Background()
	err := backend.Execute(ctx, `?[id, source_id, target_id, relation_type] <- [[
		$id, $source_id, $target_id, $relation_type
	]]
	:put relation { id, source_id, target_id, relation_type }`, map[string]any{
		"id":            id,
		"source_id":     sourceID,
		"target_id":     targetID,
		"relation_type": relationType,
	})

	if err != nil {
		t.Fatalf("failed to insert relation edge: %v", err)
	}
}

// InsertTestPendingReference adds a test pending_reference row awaiting
// resolution by the resolver.
//
// Example:
//
//	testing.InsertTestPendingReference(t, backend, "pref_123", "ent_123", "auth.HandleAuth", "repo1", "Validate", "calls", 1)
func InsertTestPendingReference(t *testing.T, backend *storage.EmbeddedBackend, id, sourceEntityID, sourceQualifiedName, sourceRepositoryID, targetQualifiedName, relationType string, createdSeq int) {
	t.Helper()

	ctx := context.Background()
	err := backend.Execute(ctx, `?[id, source_entity_id, source_qualified_name, source_repository_id, target_qualified_name, relation_type, created_seq] <- [[
		$id, $source_entity_id, $source_qualified_name, $source_repository_id, $target_qualified_name, $relation_type, $created_seq
	]]
	:put pending_reference { id, source_entity_id, source_qualified_name, source_repository_id, target_qualified_name, relation_type, created_seq }`, map[string]any{
		"id":                     id,
		"source_entity_id":       sourceEntityID,
		"source_qualified_name":  sourceQualifiedName,
		"source_repository_id":   sourceRepositoryID,
		"target_qualified_name":  targetQualifiedName,
		"relation_type":          relationType,
		"created_seq":            createdSeq,
	})

	if err != nil {
		t.Fatalf("failed to insert pending reference: %v", err)
	}
}

// QueryEntities is a helper to query all code entities from the database.
// Returns rows with [id, name, qualified_name] columns.
//
// Example:
//
//	result := testing.QueryEntities(t, backend)
//	require.Len(t, result.Rows, 2)
func QueryEntities(t *testing.T, backend *storage.EmbeddedBackend) *storage.QueryResult {
	t.Helper()

	ctx := context.Background()
	result, err := backend.Query(ctx, "?[id, name, qualified_name] := *code_entity { id, name, qualified_name }", nil)
	if err != nil {
		t.Fatalf("failed to query entities: %v", err)
	}

	return result
}

// QueryFiles is a helper to query all indexed files from the database.
// Returns rows with [id, path] columns.
//
// Example:
//
//	result := testing.QueryFiles(t, backend)
//	require.Len(t, result.Rows, 1)
func QueryFiles(t *testing.T, backend *storage.EmbeddedBackend) *storage.QueryResult {
	t.Helper()

	ctx := context.Background()
	result, err := backend.Query(ctx, "?[id, path] := *indexed_file { id, path }", nil)
	if err != nil {
		t.Fatalf("failed to query files: %v", err)
	}

	return result
}

// QueryRelations is a helper to query all relation edges from the database.
// Returns rows with [id, source_id, target_id, relation_type] columns.
//
// Example:
//
//	result := testing.QueryRelations(t, backend)
//	require.Len(t, result.Rows, 1)
func QueryRelations(t *testing.T, backend *storage.EmbeddedBackend) *storage.QueryResult {
	t.Helper()

	ctx := context.Background()
	result, err := backend.Query(ctx, "?[id, source_id, target_id, relation_type] := *relation { id, source_id, target_id, relation_type }", nil)
	if err != nil {
		t.Fatalf("failed to query relations: %v", err)
	}

	return result
}
