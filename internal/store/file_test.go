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

func TestIndexFile_NewFileEnqueues(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	result, err := s.IndexFile(ctx, "file1", "repo1", "main.go", "checksum1", "go", 100, 12345, false)
	require.NoError(t, err)
	assert.True(t, result.Enqueued)
	assert.False(t, result.Unchanged)

	f, err := s.GetFile(ctx, result.FileID)
	require.NoError(t, err)
	assert.Equal(t, store.FilePending, f.Status)

	length, err := s.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestIndexFile_UnchangedChecksumSkipsEnqueue(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	first, err := s.IndexFile(ctx, "file1", "repo1", "main.go", "checksum1", "go", 100, 1, false)
	require.NoError(t, err)
	_, err = s.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.NoError(t, s.UpdateFileIndexed(ctx, first.FileID, 3))

	second, err := s.IndexFile(ctx, "file1", "repo1", "main.go", "checksum1", "go", 100, 1, false)
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, first.FileID, second.FileID)

	length, err := s.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length, "unchanged checksum must not re-enqueue")
}

func TestIndexFile_ForceReenqueuesEvenUnchanged(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	first, err := s.IndexFile(ctx, "file1", "repo1", "main.go", "checksum1", "go", 100, 1, false)
	require.NoError(t, err)
	_, err = s.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.NoError(t, s.UpdateFileIndexed(ctx, first.FileID, 3))

	second, err := s.IndexFile(ctx, "file1", "repo1", "main.go", "checksum1", "go", 100, 1, true)
	require.NoError(t, err)
	assert.True(t, second.Enqueued)

	length, err := s.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestDequeueNextFile_FIFOWithinPriority(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)
	_, err = s.IndexFile(ctx, "file2", "repo1", "b.go", "c2", "go", 1, 1, false)
	require.NoError(t, err)

	first, err := s.DequeueNextFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file1", first)

	second, err := s.DequeueNextFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file2", second)

	empty, err := s.DequeueNextFile(ctx)
	require.NoError(t, err, "an empty queue is not an error")
	assert.Equal(t, "", empty)
}

func TestUpdateFileFailure_PromotesToPermanentAtThreshold(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)

	permanent, err := s.UpdateFileFailure(ctx, "file1", "boom", 3)
	require.NoError(t, err)
	assert.False(t, permanent)

	permanent, err = s.UpdateFileFailure(ctx, "file1", "boom", 3)
	require.NoError(t, err)
	assert.False(t, permanent)

	permanent, err = s.UpdateFileFailure(ctx, "file1", "boom", 3)
	require.NoError(t, err)
	assert.True(t, permanent)

	f, err := s.GetFile(ctx, "file1")
	require.NoError(t, err)
	assert.Equal(t, store.FilePermanentFailure, f.Status)
	assert.Equal(t, 3, f.FailureCount)
}

func TestGetRetryableFailedFiles_ExcludesQueued(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)
	_, err = s.UpdateFileFailure(ctx, "file1", "boom", 5)
	require.NoError(t, err)
	_, err = s.DequeueNextFile(ctx)
	require.NoError(t, err)

	retryable, err := s.GetRetryableFailedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, "file1", retryable[0].ID)

	require.NoError(t, s.EnqueueFile(ctx, "file1", "repo1"))
	retryable, err = s.GetRetryableFailedFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, retryable, "a queued failed file is not retryable again")
}

func TestMarkRepositoryFilesPending_SkipsDeleted(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)
	_, err = s.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.NoError(t, s.UpdateFileIndexed(ctx, "file1", 2))
	require.NoError(t, s.UpdateFileStatus(ctx, "file1", store.FileDeleted, ""))

	count, err := s.MarkRepositoryFilesPending(ctx, "repo1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	f, err := s.GetFile(ctx, "file1")
	require.NoError(t, err)
	assert.Equal(t, store.FileDeleted, f.Status)
}

func TestCountFilesByStatus(t *testing.T) {
	backend := mrcistesting.SetupTestBackend(t)
	s := store.New(backend)
	ctx := context.Background()

	_, err := s.IndexFile(ctx, "file1", "repo1", "a.go", "c1", "go", 1, 1, false)
	require.NoError(t, err)
	_, err = s.IndexFile(ctx, "file2", "repo1", "b.go", "c2", "go", 1, 1, false)
	require.NoError(t, err)

	count, err := s.CountFilesByStatus(ctx, "repo1", store.FilePending)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountFilesByStatus(ctx, "", store.FilePending)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
