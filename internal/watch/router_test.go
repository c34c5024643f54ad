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

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/internal/store"
	mrcistesting "github.com/mrcis/mrcis/internal/testing"
)

type fakeIndexer struct {
	calls []string
}

func (f *fakeIndexer) IndexFile(_ context.Context, _, _, relPath string, _ bool) (*store.EnqueueResult, error) {
	f.calls = append(f.calls, relPath)
	return &store.EnqueueResult{Enqueued: true}, nil
}

func newTestRouter(t *testing.T) (*Router, *store.Store, *fakeIndexer, Target) {
	t.Helper()
	backend := mrcistesting.SetupTestBackend(t)
	st := store.New(backend)
	root := t.TempDir()
	target := Target{
		RepositoryID: "repo1",
		Name:         "repo1",
		RootPath:     root,
		IgnoreGlobs:  []string{"vendor/**", "*.log"},
	}
	idx := &fakeIndexer{}
	r := New(st, idx, []Target{target}, nil)
	return r, st, idx, target
}

func TestRouteUnknownRepositoryDropsEvent(t *testing.T) {
	r, _, idx, target := newTestRouter(t)
	ctx := context.Background()

	err := r.Route(ctx, EventCreated, filepath.Join(target.RootPath, "main.go"), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, idx.calls)
}

func TestRouteIgnoredPathDropsEvent(t *testing.T) {
	r, _, idx, target := newTestRouter(t)
	ctx := context.Background()

	err := r.Route(ctx, EventCreated, filepath.Join(target.RootPath, "vendor", "lib.go"), target.Name)
	require.NoError(t, err)
	assert.Empty(t, idx.calls)
}

func TestRouteCreatedCallsIndexFile(t *testing.T) {
	r, _, idx, target := newTestRouter(t)
	ctx := context.Background()
	path := filepath.Join(target.RootPath, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	err := r.Route(ctx, EventCreated, path, target.Name)
	require.NoError(t, err)
	require.Len(t, idx.calls, 1)
	assert.Equal(t, "main.go", idx.calls[0])
}

func TestRouteDeletedButStillPresentIsTreatedAsModified(t *testing.T) {
	r, _, idx, target := newTestRouter(t)
	ctx := context.Background()
	path := filepath.Join(target.RootPath, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	// Atomic-save editors report a delete even though the file is back by
	// the time the router observes it.
	err := r.Route(ctx, EventDeleted, path, target.Name)
	require.NoError(t, err)
	require.Len(t, idx.calls, 1)
	assert.Equal(t, "main.go", idx.calls[0])
}

func TestRouteRealDeleteMarksFileDeleted(t *testing.T) {
	r, st, idx, target := newTestRouter(t)
	ctx := context.Background()
	path := filepath.Join(target.RootPath, "gone.go")

	require.NoError(t, st.UpsertRepository(ctx, &store.Repository{ID: target.RepositoryID, Name: target.Name, RootPath: target.RootPath, Status: store.RepoWatching}))
	_, err := st.IndexFile(ctx, "file1", target.RepositoryID, "gone.go", "deadbeef", "go", 10, 0, false)
	require.NoError(t, err)

	err = r.Route(ctx, EventDeleted, path, target.Name)
	require.NoError(t, err)
	assert.Empty(t, idx.calls)

	f, err := st.GetFile(ctx, "file1")
	require.NoError(t, err)
	assert.Equal(t, store.FileDeleted, f.Status)
}

func TestRouteRealDeleteUnknownFileIsNoop(t *testing.T) {
	r, _, idx, target := newTestRouter(t)
	ctx := context.Background()
	path := filepath.Join(target.RootPath, "never-indexed.go")

	err := r.Route(ctx, EventDeleted, path, target.Name)
	require.NoError(t, err)
	assert.Empty(t, idx.calls)
}
