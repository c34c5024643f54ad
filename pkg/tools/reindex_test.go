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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

func TestReindexRepositoryRefusesOnReadOnlyInstance(t *testing.T) {
	st, backend := newTestStore(t)
	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", t.TempDir(), "watching")

	result, err := ReindexRepository(context.Background(), st, false, discovery.Options{}, ReindexRepositoryArgs{Repository: "demo"})
	require.NoError(t, err)
	assert.Equal(t, ReindexRefused, result.Status)
}

func TestReindexRepositoryForceResetsAndRequeues(t *testing.T) {
	st, backend := newTestStore(t)
	root := t.TempDir()
	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", root, "watching")
	mrcistesting.InsertTestFile(t, backend, "file1", "repo1", "a.go", "chk1", "go", 10)
	_, err := st.UpdateFileFailure(context.Background(), "file1", "boom", 5)
	require.NoError(t, err)

	result, err := ReindexRepository(context.Background(), st, true, discovery.Options{}, ReindexRepositoryArgs{Repository: "demo", Force: true})
	require.NoError(t, err)
	assert.Equal(t, ReindexQueued, result.Status)
	assert.Equal(t, 1, result.FilesQueued)

	file, err := st.GetFile(context.Background(), "file1")
	require.NoError(t, err)
	assert.Equal(t, store.FilePending, file.Status)
	assert.Equal(t, 0, file.FailureCount)
}

func TestReindexRepositoryDryRunDoesNotMutate(t *testing.T) {
	st, backend := newTestStore(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))
	mrcistesting.InsertTestRepository(t, backend, "repo1", "demo", root, "pending")

	result, err := ReindexRepository(context.Background(), st, true, discovery.Options{}, ReindexRepositoryArgs{Repository: "demo", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, ReindexDryRun, result.Status)
	assert.Equal(t, 1, result.FilesQueued)

	_, err = st.GetFileByPath(context.Background(), "repo1", "a.go")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReindexRepositoryRequiresRepository(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := ReindexRepository(context.Background(), st, true, discovery.Options{}, ReindexRepositoryArgs{})
	assert.Error(t, err)
}
