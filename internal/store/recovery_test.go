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

func TestRecoverFromCrash_ResetsProcessingAndReenqueuesPending(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	// file1 was mid-processing when the process died.
	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)
	_, err = s.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.NoError(t, s.UpdateFileStatus(ctx, "file1", store.FileProcessing, ""))

	// file2 is pending but was never enqueued (crash between upsert and enqueue).
	require.NoError(t, s.UpsertRepository(ctx, &store.Repository{ID: "repo1", Name: "repo1", RootPath: "/r", Status: store.RepoIndexing}))
	mrcistesting.InsertTestFile(t, backend, "file2", "repo1", "b.go", "c2", "go", 1)
	require.NoError(t, s.UpdateFileStatus(ctx, "file2", store.FilePending, ""))

	report, err := s.RecoverFromCrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesResetFromProcessing)
	assert.Equal(t, 2, report.FilesReenqueued, "both the just-reset file1 and the orphaned-pending file2 get re-queued")
	assert.Equal(t, 1, report.RepositoriesReset)

	f1, err := s.GetFile(ctx, "file1")
	require.NoError(t, err)
	assert.Equal(t, store.FilePending, f1.Status)

	length, err := s.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length, "both file1 and file2 must be queued exactly once after recovery")

	repo, err := s.GetRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, store.RepoPending, repo.Status)
}

func TestRecoverFromCrash_NoOpOnCleanState(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	report, err := s.RecoverFromCrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesResetFromProcessing)
	assert.Equal(t, 0, report.FilesReenqueued)
	assert.Equal(t, 0, report.RepositoriesReset)
}
