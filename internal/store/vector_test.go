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

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
	"github.com/mrcis/mrcis/pkg/storage"
)

func seedEntityForVector(t *testing.T, backend *storage.EmbeddedBackend, id, fileID, qualified string) {
	t.Helper()
	mrcistesting.InsertTestEntity(t, backend, id, "repo1", fileID, string(entity.TypeFunction), "Name", qualified, "go", 1, 5)
}

func TestUpsertVectorsAndDeleteForFile(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "a.go", "c1", "go", 10)
	seedEntityForVector(t, backend, "ent1", "file1", "pkg.A")

	count, err := s.UpsertVectors(ctx, []store.EntityVector{
		{VectorID: "vec1", EntityID: "ent1", Embedding: []float64{0.1, 0.2, 0.3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.UpdateEntityVectorID(ctx, "ent1", "vec1"))

	deleted, err := s.DeleteVectorsForFile(ctx, "file1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestDeleteVectorsForRepository(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "a.go", "c1", "go", 10)
	seedEntityForVector(t, backend, "ent1", "file1", "pkg.A")
	require.NoError(t, s.UpdateEntityVectorID(ctx, "ent1", "vec1"))
	_, err := s.UpsertVectors(ctx, []store.EntityVector{{VectorID: "vec1", EntityID: "ent1", Embedding: []float64{0.5, 0.5}}})
	require.NoError(t, err)

	deleted, err := s.DeleteVectorsForRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
