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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetupTestBackend verifies the test backend is created correctly.
func TestSetupTestBackend(t *testing.T) {
	backend := SetupTestBackend(t)

	// Backend should not be nil
	require.NotNil(t, backend)

	// Should be able to query (schema should exist)
	result := QueryEntities(t, backend)
	require.NotNil(t, result)
	assert.Empty(t, result.Rows, "should start with no entities")
}

// TestInsertTestEntity verifies entity insertion.
func TestInsertTestEntity(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestEntity(t, backend, "ent_123", "repo1", "file_123", "function", "HandleAuth", "auth.HandleAuth", "go", 10, 25)

	result := QueryEntities(t, backend)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "ent_123", result.Rows[0][0])
	assert.Equal(t, "HandleAuth", result.Rows[0][1])
	assert.Equal(t, "auth.HandleAuth", result.Rows[0][2])
}

// TestInsertTestFile verifies file insertion.
func TestInsertTestFile(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestFile(t, backend, "file_123", "repo1", "auth.go", "abc123", "go", 1234)

	result := QueryFiles(t, backend)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "file_123", result.Rows[0][0])
	assert.Equal(t, "auth.go", result.Rows[0][1])
}

// TestInsertTestRepository verifies repository insertion.
func TestInsertTestRepository(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestRepository(t, backend, "repo_123", "myrepo", "/src/myrepo", "ready")

	ctx := context.Background()
	result, err := backend.Query(ctx, "?[id, name] := *repository { id, name }", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "myrepo", result.Rows[0][1])
}

// TestMultipleInserts verifies multiple entities can be inserted.
func TestMultipleInserts(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestEntity(t, backend, "ent1", "repo1", "main.go", "function", "main", "main", "go", 5, 10)
	InsertTestEntity(t, backend, "ent2", "repo1", "util.go", "function", "Helper", "util.Helper", "go", 15, 20)
	InsertTestEntity(t, backend, "ent3", "repo1", "processor.go", "function", "Process", "processor.Process", "go", 25, 35)

	result := QueryEntities(t, backend)
	require.Len(t, result.Rows, 3)
}

// TestEdgeInsertion verifies relation edges can be inserted.
func TestEdgeInsertion(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestFile(t, backend, "file1", "repo1", "main.go", "hash1", "go", 100)
	InsertTestEntity(t, backend, "ent1", "repo1", "file1", "function", "main", "main", "go", 1, 10)
	InsertTestEntity(t, backend, "ent2", "repo1", "file1", "function", "helper", "helper", "go", 12, 15)

	InsertTestRelation(t, backend, "rel1", "ent1", "ent2", "calls")

	result := QueryRelations(t, backend)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "calls", result.Rows[0][3])
}

// TestPendingReferenceInsertion verifies pending_reference seeding.
func TestPendingReferenceInsertion(t *testing.T) {
	backend := SetupTestBackend(t)

	InsertTestEntity(t, backend, "ent1", "repo1", "file1", "function", "main", "main", "go", 1, 10)
	InsertTestPendingReference(t, backend, "pref1", "ent1", "main", "repo1", "helper", "calls", 1)

	ctx := context.Background()
	result, err := backend.Query(ctx, "?[id, status] := *pending_reference { id, status }", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "pending", result.Rows[0][1])
}

// TestBackendIsolation verifies each test gets isolated backend.
func TestBackendIsolation(t *testing.T) {
	backend1 := SetupTestBackend(t)
	InsertTestEntity(t, backend1, "ent1", "repo1", "file1", "function", "Test1", "Test1", "go", 1, 10)

	backend2 := SetupTestBackend(t)
	result := QueryEntities(t, backend2)
	assert.Empty(t, result.Rows, "second backend should be isolated from first")

	result1 := QueryEntities(t, backend1)
	assert.Len(t, result1.Rows, 1)
}
