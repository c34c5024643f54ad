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
	"fmt"
	"log/slog"

	"github.com/mrcis/mrcis/internal/discovery"
	"github.com/mrcis/mrcis/internal/entity"
	"github.com/mrcis/mrcis/internal/store"
)

// ReindexStatus is reindex_repository's closed result status.
type ReindexStatus string

const (
	ReindexQueued   ReindexStatus = "queued"
	ReindexRefused  ReindexStatus = "refused"
	ReindexDryRun   ReindexStatus = "dry_run"
)

// ReindexRepositoryArgs is reindex_repository's input.
type ReindexRepositoryArgs struct {
	Repository string
	Force      bool
	DryRun     bool
}

// ReindexRepositoryResult is reindex_repository's output.
type ReindexRepositoryResult struct {
	Status      ReindexStatus
	FilesQueued int
	Message     string
}

// ReindexRepository re-scans a repository and enqueues changed (or, with
// force, all) files. Read-only instances refuse immediately; force resets
// failure_count and re-enqueues every file; dry_run
// reports the count without mutating any state.
func ReindexRepository(ctx context.Context, st *store.Store, isWriter bool, walkerOpts discovery.Options, args ReindexRepositoryArgs) (*ReindexRepositoryResult, error) {
	if args.Repository == "" {
		return nil, fmt.Errorf("reindex_repository: repository is required")
	}
	if !isWriter {
		return &ReindexRepositoryResult{
			Status:  ReindexRefused,
			Message: "this instance holds a read-only lock; reindex must run against the writer instance",
		}, nil
	}

	repo, err := st.GetRepositoryByName(ctx, args.Repository)
	if err != nil {
		return nil, fmt.Errorf("reindex_repository: unknown repository %q: %w", args.Repository, err)
	}

	walker := discovery.NewWalker(slog.Default(), walkerOpts)
	result, err := walker.Discover(repo.RootPath)
	if err != nil {
		return nil, fmt.Errorf("reindex_repository: discover %s: %w", repo.RootPath, err)
	}

	if args.DryRun {
		queued := len(result.Files)
		if !args.Force {
			queued, err = countChangedFiles(ctx, st, repo.ID, result.Files)
			if err != nil {
				return nil, fmt.Errorf("reindex_repository: %w", err)
			}
		}
		return &ReindexRepositoryResult{Status: ReindexDryRun, FilesQueued: queued}, nil
	}

	if args.Force {
		count, err := st.MarkRepositoryFilesPending(ctx, repo.ID)
		if err != nil {
			return nil, fmt.Errorf("reindex_repository: %w", err)
		}
		return &ReindexRepositoryResult{Status: ReindexQueued, FilesQueued: count}, nil
	}

	queued := 0
	for _, f := range result.Files {
		id := entity.NewID("file", repo.ID, f.Path)
		res, err := st.IndexFile(ctx, id, repo.ID, f.Path, f.Checksum, f.Language, f.Size, 0, false)
		if err != nil {
			return nil, fmt.Errorf("reindex_repository: index %s: %w", f.Path, err)
		}
		if res.Enqueued {
			queued++
		}
	}
	return &ReindexRepositoryResult{Status: ReindexQueued, FilesQueued: queued}, nil
}

// countChangedFiles mirrors reindex's non-force enqueue decision
// (checksum differs from the stored IndexedFile, or the file is new)
// without writing anything, for dry_run.
func countChangedFiles(ctx context.Context, st *store.Store, repositoryID string, files []discovery.File) (int, error) {
	count := 0
	for _, f := range files {
		existing, err := st.GetFileByPath(ctx, repositoryID, f.Path)
		if err != nil && err != store.ErrNotFound {
			return 0, err
		}
		if existing == nil || existing.Checksum != f.Checksum {
			count++
		}
	}
	return count, nil
}
