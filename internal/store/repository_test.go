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

	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

func TestUpsertAndGetRepository(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	repo := &store.Repository{
		ID:       "repo1",
		Name:     "myrepo",
		RootPath: "/src/myrepo",
		Status:   store.RepoPending,
	}
	require.NoError(t, s.UpsertRepository(ctx, repo))

	got, err := s.GetRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, "myrepo", got.Name)
	assert.Equal(t, store.RepoPending, got.Status)
}

func TestGetRepository_NotFound(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)

	_, err := s.GetRepository(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetRepositoryByName(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{
		ID: "repo1", Name: "myrepo", RootPath: "/src/myrepo", Status: store.RepoWatching,
	}))

	got, err := s.GetRepositoryByName(ctx, "myrepo")
	require.NoError(t, err)
	assert.Equal(t, "repo1", got.ID)
}

func TestListRepositories(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{ID: "r1", Name: "one", RootPath: "/one", Status: store.RepoPending}))
	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{ID: "r2", Name: "two", RootPath: "/two", Status: store.RepoPending}))

	repos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Len(t, repos, 2)
}

func TestUpdateRepositoryStatus_PreservesOtherFields(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{
		ID: "repo1", Name: "myrepo", RootPath: "/src/myrepo", Status: store.RepoPending, FileCount: 42,
	}))

	require.NoError(t, s.UpdateRepositoryStatus(ctx, "repo1", store.RepoError, "parse failed"))

	got, err := s.GetRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, store.RepoError, got.Status)
	assert.Equal(t, "parse failed", got.ErrorMessage)
	assert.Equal(t, 42, got.FileCount, "unrelated fields must survive a status-only update")
}

func TestUpdateRepositoryStats(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{
		ID: "repo1", Name: "myrepo", RootPath: "/src/myrepo", Status: store.RepoIndexing,
	}))
	require.NoError(t, s.UpdateRepositoryStats(ctx, "repo1", 10, 50, 30, "abc123"))

	got, err := s.GetRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.FileCount)
	assert.Equal(t, 50, got.EntityCount)
	assert.Equal(t, 30, got.RelationCount)
	assert.Equal(t, "abc123", got.LastIndexedCommit)
	assert.Greater(t, got.LastIndexedAt, 0.0)
}

func TestDeleteRepository(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{ID: "repo1", Name: "myrepo", RootPath: "/r", Status: store.RepoPending}))
	require.NoError(t, s.DeleteRepository(ctx, "repo1"))

	_, err := s.GetRepository(ctx, "repo1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
