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

package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/embedding"
	"github.com/mrcis/mrcis/internal/extract"
	"github.com/mrcis/mrcis/internal/pipeline"
	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

type noopResolver struct{ calls int }

func (n *noopResolver) ResolveBatch(_ context.Context, _ int) (int, error) {
	n.calls++
	return 0, nil
}

func newTestService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	backend := mrcistesting.SetupTestBackend(t)
	st := store.New(backend)
	client := embedding.NewClient(&embedding.MockProvider{Dimensions: 8}, 4, embedding.DefaultRetryConfig())
	pl := pipeline.New(st, extract.NewRegistry(), client)
	svc := New(st, pl, &noopResolver{}, Config{BatchSize: 10, MaxRetries: 2, RetryDelaySeconds: 60, ParseWorkers: 2}, nil)

	root := t.TempDir()
	return svc, st, root
}

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestServiceIndexFileEnqueuesOnce(t *testing.T) {
	svc, st, root := newTestService(t)
	ctx := context.Background()
	writeFile(t, root, "main.go", "package main\n\nfunc Run() {}\n")

	require.NoError(t, st.UpsertRepository(ctx, &store.Repository{ID: "repo1", Name: "repo1", RootPath: root, Status: store.RepoPending}))

	res, err := svc.IndexFile(ctx, "repo1", root, "main.go", false)
	require.NoError(t, err)
	assert.True(t, res.Enqueued)

	// Unchanged content, not forced: should short-circuit without re-enqueueing.
	res2, err := svc.IndexFile(ctx, "repo1", root, "main.go", false)
	require.NoError(t, err)
	assert.True(t, res2.Unchanged)
	assert.Equal(t, res.FileID, res2.FileID)
}

func TestServiceProcessFileMarksIndexedAndUpdatesAggregates(t *testing.T) {
	svc, st, root := newTestService(t)
	ctx := context.Background()
	writeFile(t, root, "main.go", "package main\n\nfunc Run() {}\n")

	require.NoError(t, st.UpsertRepository(ctx, &store.Repository{ID: "repo1", Name: "repo1", RootPath: root, Status: store.RepoIndexing}))
	enq, err := svc.IndexFile(ctx, "repo1", root, "main.go", false)
	require.NoError(t, err)

	fileID, err := st.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.Equal(t, enq.FileID, fileID)

	require.NoError(t, svc.processFile(ctx, fileID))

	f, err := st.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, store.FileIndexed, f.Status)
	assert.GreaterOrEqual(t, f.EntityCount, 1)

	repo, err := st.GetRepository(ctx, "repo1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, repo.EntityCount, 1)
	assert.Equal(t, store.RepoWatching, repo.Status)
}

func TestServiceProcessFileHandlesMissingFile(t *testing.T) {
	svc, st, root := newTestService(t)
	ctx := context.Background()
	writeFile(t, root, "gone.go", "package main\n")

	require.NoError(t, st.UpsertRepository(ctx, &store.Repository{ID: "repo1", Name: "repo1", RootPath: root, Status: store.RepoPending}))
	enq, err := svc.IndexFile(ctx, "repo1", root, "gone.go", false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.go")))

	fileID, err := st.DequeueNextFile(ctx)
	require.NoError(t, err)
	require.Equal(t, enq.FileID, fileID)

	require.NoError(t, svc.processFile(ctx, fileID))

	f, err := st.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, store.FileDeleted, f.Status)
}
